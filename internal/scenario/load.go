package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Format is a scenario file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported scenario extension %q (want .yaml, .yml or .cue)", filepath.Ext(path))
	}
}

// Load reads, decodes and validates a scenario file.
func Load(path string) (*Scenario, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return parse(data, format, path)
}

// Parse decodes and validates a scenario from memory.
func Parse(data []byte, format Format) (*Scenario, error) {
	return parse(data, format, "scenario."+string(format))
}

func parse(data []byte, format Format, filename string) (*Scenario, error) {
	var (
		doc document
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatCUE:
		doc, err = decodeCUE(data, filename)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
	if err != nil {
		return nil, err
	}

	s, err := doc.toScenario()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := Validate(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

func decodeYAML(data []byte) (document, error) {
	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject typos like "evnets:"
	if err := decoder.Decode(&doc); err != nil {
		return document{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc, nil
}

func decodeCUE(data []byte, filename string) (document, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return document{}, fmt.Errorf("compile scenario schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return document{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return document{}, formatCUEError(err)
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return document{}, formatCUEError(err)
	}
	return doc, nil
}

// CUEError is a CUE compile or schema error with its source position.
type CUEError struct {
	Message string
	Pos     token.Pos
}

func (e *CUEError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &CUEError{Message: first.Error(), Pos: positions[0]}
	}
	return &CUEError{Message: first.Error()}
}

// document is the on-disk shape shared by the YAML and CUE forms.
// CUE decodes through the json tags.
type document struct {
	ID         string     `yaml:"id" json:"id"`
	Title      string     `yaml:"title" json:"title"`
	DurationMS int64      `yaml:"duration_ms" json:"duration_ms"`
	Events     []eventDoc `yaml:"events" json:"events"`
}

type eventDoc struct {
	Kind    string   `yaml:"kind" json:"kind"`
	At      int64    `yaml:"at" json:"at"`
	Phase   string   `yaml:"phase,omitempty" json:"phase,omitempty"`
	Side    string   `yaml:"side,omitempty" json:"side,omitempty"`
	Role    string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Text    string   `yaml:"text,omitempty" json:"text,omitempty"`
	Card    *cardDoc `yaml:"card,omitempty" json:"card,omitempty"`
	Payload string   `yaml:"payload,omitempty" json:"payload,omitempty"`
}

type cardDoc struct {
	ID       string       `yaml:"id" json:"id"`
	Step     string       `yaml:"step,omitempty" json:"step,omitempty"`
	Title    string       `yaml:"title,omitempty" json:"title,omitempty"`
	Lines    []lineDoc    `yaml:"lines" json:"lines"`
	Status   *statusDoc   `yaml:"status,omitempty" json:"status,omitempty"`
	SubCards []subCardDoc `yaml:"sub_cards,omitempty" json:"sub_cards,omitempty"`
	Error    bool         `yaml:"error,omitempty" json:"error,omitempty"`
}

type lineDoc struct {
	Kind  string `yaml:"kind" json:"kind"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
}

type statusDoc struct {
	OK   bool   `yaml:"ok" json:"ok"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
	Note string `yaml:"note,omitempty" json:"note,omitempty"`
}

type subCardDoc struct {
	At    int64     `yaml:"at" json:"at"`
	Lines []lineDoc `yaml:"lines" json:"lines"`
}

// maxMS is the largest millisecond count a time.Duration can hold.
const maxMS = math.MaxInt64 / int64(time.Millisecond)

// ms converts an authored millisecond count. Values a Duration cannot hold
// are rejected instead of wrapping; sign checks are left to Validate.
func ms(field string, v int64) (time.Duration, error) {
	if v > maxMS || v < -maxMS {
		return 0, invalid(field, "%d ms is out of range (max %d)", v, maxMS)
	}
	return time.Duration(v) * time.Millisecond, nil
}

// nfc normalizes authored text so rune-counted reveal cursors do not depend
// on how an editor composed accented characters.
func nfc(s string) string {
	return norm.NFC.String(s)
}

func (d document) toScenario() (*Scenario, error) {
	if d.ID == "" {
		return nil, invalid("id", "is required")
	}

	duration, err := ms("duration_ms", d.DurationMS)
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		ID:       d.ID,
		Title:    nfc(d.Title),
		Duration: duration,
		Events:   make([]Event, 0, len(d.Events)),
	}

	for i, ed := range d.Events {
		field := fmt.Sprintf("events[%d]", i)
		at, err := ms(field+".at", ed.At)
		if err != nil {
			return nil, err
		}

		switch EventKind(ed.Kind) {
		case KindPhase:
			s.Events = append(s.Events, &PhaseTransition{At: at, Phase: Phase(ed.Phase)})
		case KindChat:
			s.Events = append(s.Events, &ChatMessage{
				At:   at,
				Side: Side(ed.Side),
				Role: Role(ed.Role),
				Name: nfc(ed.Name),
				Text: nfc(ed.Text),
			})
		case KindCard:
			if ed.Card == nil {
				return nil, invalid(field+".card", "is required for kind card")
			}
			card, err := ed.Card.toCard(field+".card", at)
			if err != nil {
				return nil, err
			}
			s.Events = append(s.Events, card)
		case KindSignal:
			s.Events = append(s.Events, &SignalEmission{At: at, Payload: ed.Payload})
		case "":
			return nil, invalid(field+".kind", "is required")
		default:
			return nil, invalid(field+".kind", "unknown event kind %q", ed.Kind)
		}
	}

	return s, nil
}

func (c *cardDoc) toCard(field string, at time.Duration) (*ProtocolCard, error) {
	card := &ProtocolCard{
		At:    at,
		ID:    c.ID,
		Step:  c.Step,
		Title: nfc(c.Title),
		Lines: toLines(c.Lines),
		Error: c.Error,
	}
	if c.Status != nil {
		card.Status = &CardStatus{OK: c.Status.OK, Text: nfc(c.Status.Text), Note: nfc(c.Status.Note)}
	}
	for i, sub := range c.SubCards {
		subAt, err := ms(fmt.Sprintf("%s.sub_cards[%d].at", field, i), sub.At)
		if err != nil {
			return nil, err
		}
		card.SubCards = append(card.SubCards, SubCard{At: subAt, Lines: toLines(sub.Lines)})
	}
	return card, nil
}

func toLines(docs []lineDoc) []Line {
	if len(docs) == 0 {
		return nil
	}
	lines := make([]Line, len(docs))
	for i, l := range docs {
		lines[i] = Line{Kind: LineKind(l.Kind), Key: l.Key, Value: nfc(l.Value), Text: nfc(l.Text)}
	}
	return lines
}

// MarshalJSON renders a scenario in its authoring shape, offsets in
// milliseconds. Used by the browser bridge to ship static content.
func MarshalJSON(s *Scenario) ([]byte, error) {
	return json.Marshal(fromScenario(s))
}

// MarshalCardJSON renders one card in its authoring shape.
func MarshalCardJSON(c *ProtocolCard) ([]byte, error) {
	return json.Marshal(fromCard(c))
}

// MarshalSubCardJSON renders one sub-card in its authoring shape.
func MarshalSubCardJSON(sub *SubCard) ([]byte, error) {
	return json.Marshal(subCardDoc{At: sub.At.Milliseconds(), Lines: fromLines(sub.Lines)})
}

func fromScenario(s *Scenario) document {
	d := document{
		ID:         s.ID,
		Title:      s.Title,
		DurationMS: s.Duration.Milliseconds(),
		Events:     make([]eventDoc, 0, len(s.Events)),
	}
	for _, ev := range s.Events {
		ed := eventDoc{Kind: string(ev.Kind()), At: ev.DueAt().Milliseconds()}
		switch e := ev.(type) {
		case *PhaseTransition:
			ed.Phase = string(e.Phase)
		case *ChatMessage:
			ed.Side, ed.Role, ed.Name, ed.Text = string(e.Side), string(e.Role), e.Name, e.Text
		case *ProtocolCard:
			ed.Card = fromCard(e)
		case *SignalEmission:
			ed.Payload = e.Payload
		}
		d.Events = append(d.Events, ed)
	}
	return d
}

func fromCard(c *ProtocolCard) *cardDoc {
	cd := &cardDoc{ID: c.ID, Step: c.Step, Title: c.Title, Lines: fromLines(c.Lines), Error: c.Error}
	if c.Status != nil {
		cd.Status = &statusDoc{OK: c.Status.OK, Text: c.Status.Text, Note: c.Status.Note}
	}
	for _, sub := range c.SubCards {
		cd.SubCards = append(cd.SubCards, subCardDoc{At: sub.At.Milliseconds(), Lines: fromLines(sub.Lines)})
	}
	return cd
}

func fromLines(lines []Line) []lineDoc {
	docs := make([]lineDoc, len(lines))
	for i, l := range lines {
		docs[i] = lineDoc{Kind: string(l.Kind), Key: l.Key, Value: l.Value, Text: l.Text}
	}
	return docs
}
