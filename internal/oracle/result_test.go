package oracle_test

import (
	"testing"

	"github.com/riskplane/riskplane/internal/oracle"
)

type verdict struct {
	Score    int    `json:"score"`
	Decision string `json:"decision"`
}

func TestParse_PlainJSON(t *testing.T) {
	r := oracle.Parse[verdict](`{"score": 720, "decision": "approved"}`)

	if !r.Parsed {
		t.Fatal("Parse() failed on plain JSON")
	}
	if r.Value.Score != 720 || r.Value.Decision != "approved" {
		t.Errorf("Value = %+v", r.Value)
	}
}

func TestParse_MarkdownFence(t *testing.T) {
	raw := "Here is my assessment:\n```json\n{\"score\": 300, \"decision\": \"rejected\"}\n```\nLet me know if you need more detail."

	r := oracle.Parse[verdict](raw)

	if !r.Parsed {
		t.Fatal("Parse() failed on fenced JSON")
	}
	if r.Value.Score != 300 {
		t.Errorf("Value.Score = %d, want 300", r.Value.Score)
	}
}

func TestParse_SurroundingProse(t *testing.T) {
	raw := `Based on the data, {"score": 550, "decision": "manual_review"} is my verdict.`

	r := oracle.Parse[verdict](raw)

	if !r.Parsed {
		t.Fatal("Parse() failed on JSON embedded in prose")
	}
	if r.Value.Decision != "manual_review" {
		t.Errorf("Value.Decision = %q", r.Value.Decision)
	}
}

func TestParse_NoJSON(t *testing.T) {
	raw := "I cannot evaluate this request."

	r := oracle.Parse[verdict](raw)

	if r.Parsed {
		t.Fatal("Parse() claimed success with no JSON present")
	}
	if r.Raw != raw {
		t.Errorf("Raw = %q, want original output preserved", r.Raw)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	r := oracle.Parse[verdict](`{"score": "not-a-number"}`)

	if r.Parsed {
		t.Fatal("Parse() claimed success on a type mismatch")
	}
}

func TestParse_EmptyString(t *testing.T) {
	if r := oracle.Parse[verdict](""); r.Parsed {
		t.Fatal("Parse() claimed success on empty input")
	}
}
