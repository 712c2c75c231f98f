package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Prompt is a fully rendered, provider-agnostic instruction set. Rendering
// is deterministic: identical Input yields byte-identical System and User
// text, which Fingerprint makes checkable.
type Prompt struct {
	Name       string
	Version    int
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

func (p Prompt) Fingerprint() string {
	h := sha256.Sum256([]byte(
		strings.TrimSpace(p.Name) + "|" +
			strconv.Itoa(p.Version) + "|" +
			strings.TrimSpace(p.System) + "|" +
			strings.TrimSpace(p.User),
	))
	return hex.EncodeToString(h[:])
}

// Input carries everything a template may render. FlattenedText is the only
// clinical evidence the generation step is permitted to see.
type Input struct {
	PatientID        string
	FlattenedText    string
	IncludeCitations bool
	TruncationNote   string
}

type PromptName string

const ClinicalSummary PromptName = "clinical_summary"

type Validator func(Input) error
