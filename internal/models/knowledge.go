package models

import "time"

// KnowledgeCategory classifies a knowledge entry.
type KnowledgeCategory string

const (
	CategoryBusinessRule   KnowledgeCategory = "business_rule"
	CategoryArchitecture   KnowledgeCategory = "architecture"
	CategoryAPIQuirk       KnowledgeCategory = "api_quirk"
	CategoryLessonLearned  KnowledgeCategory = "lesson_learned"
	CategoryConvention     KnowledgeCategory = "convention"
)

// KnowledgeSource names who produced a knowledge entry.
type KnowledgeSource string

const (
	SourceWorkshop KnowledgeSource = "workshop"
	SourcePipeline KnowledgeSource = "pipeline"
	SourceManual   KnowledgeSource = "manual"
	SourceFDRL     KnowledgeSource = "fdrl"
)

// KnowledgeStatus is the promotion state of a knowledge entry.
type KnowledgeStatus string

const (
	KnowledgeCandidate KnowledgeStatus = "candidate"
	KnowledgeActive    KnowledgeStatus = "active"
	KnowledgeArchived  KnowledgeStatus = "archived"
)

// KnowledgeEntry is a fact produced by agents for reuse, scoped either to a
// project or mirrored globally.
type KnowledgeEntry struct {
	ID      string `json:"id"` // UUID
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Content string `json:"content"`

	Category KnowledgeCategory `json:"category"`
	Tags     []string          `json:"tags"`

	Source   KnowledgeSource `json:"source"`
	SourceID *string         `json:"source_id,omitempty"`

	Status        KnowledgeStatus `json:"status"`
	TokenEstimate int             `json:"token_estimate"`

	// GlobalMirrorID links a project-scoped entry to its mirrored copy in
	// the global knowledge base, once promoted. Nil until promotion.
	GlobalMirrorID *string `json:"global_mirror_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
