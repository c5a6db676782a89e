package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ExemplarPattern is a curated workflow excerpt attached to one or more
// hint labels. Position fixes iteration order so selection is deterministic.
type ExemplarPattern struct {
	ID        snowflake.ID   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	Position  int            `json:"position" gorm:"not null;index"`
	Hints     datatypes.JSON `json:"hints" gorm:"not null"`
	Summary   string         `json:"summary" gorm:"type:text;not null"`
	Document  datatypes.JSON `json:"document" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (ExemplarPattern) TableName() string { return "exemplar_patterns" }

type Tip struct {
	ID        snowflake.ID   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	Position  int            `json:"position" gorm:"not null;index"`
	Hints     datatypes.JSON `json:"hints" gorm:"not null"`
	Text      string         `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Tip) TableName() string { return "authoring_tips" }

type TemplateSkeleton struct {
	ID        snowflake.ID   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	Position  int            `json:"position" gorm:"not null;index"`
	Hints     datatypes.JSON `json:"hints" gorm:"not null"`
	Document  datatypes.JSON `json:"document" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (TemplateSkeleton) TableName() string { return "template_skeletons" }

// Selection caps keep the assembled context bounded no matter how many
// hints a prompt triggers.
const (
	MaxPatterns  = 10
	MaxTips      = 5
	MaxTemplates = 3
)

// Selection is the catalog material matched against a hint set, already
// deduplicated and capped.
type Selection struct {
	Patterns  []ExemplarPattern
	Tips      []Tip
	Templates []TemplateSkeleton
}

var ErrInvalidHint = errors.New("invalid_hint")

// DecodeHints parses the stored hint label array. Malformed rows decode to
// nil and simply never match.
func DecodeHints(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var hints []string
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil
	}
	return hints
}

// MatchesAny reports whether any stored hint label is present in wanted.
func MatchesAny(raw datatypes.JSON, wanted map[string]struct{}) bool {
	for _, hint := range DecodeHints(raw) {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(hint))]; ok {
			return true
		}
	}
	return false
}
