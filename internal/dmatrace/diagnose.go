package dmatrace

import (
	"context"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"github.com/semmlerino/spritepal/internal/extractor"
	"github.com/semmlerino/spritepal/internal/navigation"
	"github.com/semmlerino/spritepal/internal/rom"
	"github.com/semmlerino/spritepal/internal/scanner"
)

// Adjustment is the kind of correction applied to a traced offset.
type Adjustment uint8

// offset adjustments.
const (
	Direct Adjustment = iota
	SMCHeader
	Aligned
	Banking
)

var adjustmentFactors = map[Adjustment]float64{
	Direct:    1.0,
	SMCHeader: 0.9,
	Aligned:   0.8,
	Banking:   0.7,
}

var adjustmentNames = map[Adjustment]string{
	Direct:    "direct",
	SMCHeader: "smc header",
	Aligned:   "alignment",
	Banking:   "banking",
}

// String returns the name of the adjustment.
func (a Adjustment) String() string {
	return adjustmentNames[a]
}

// Factor returns the confidence factor of sprites found with the adjustment.
func (a Adjustment) Factor() float64 {
	return adjustmentFactors[a]
}

var (
	alignments      = []int{0x10, 0x20, 0x40, 0x80, 0x100, 0x200}
	bankingVariants = []struct {
		delta int
		name  string
	}{
		{-0x8000, "LoROM bank base"},
		{0x8000, "HiROM bank base"},
		{0x10000, "alternative banking"},
	}
)

// Candidate is an offset to test for a traced offset.
type Candidate struct {
	Offset      int
	Adjustment  Adjustment
	Description string
}

// Candidates returns the offsets to test for a traced offset in a ROM of the
// given size: the offset itself, the offset shifted by the copier header,
// nearby aligned offsets and common banking miscalculations. Offsets outside
// of the ROM and duplicates are skipped.
func Candidates(offset, romSize, smcOffset int) []Candidate {
	var candidates []Candidate
	seen := set.New[int]()
	add := func(o int, adjustment Adjustment, description string) {
		if o < 0 || o >= romSize || seen.Contains(o) {
			return
		}
		seen.Add(o)
		candidates = append(candidates, Candidate{Offset: o, Adjustment: adjustment, Description: description})
	}

	add(offset, Direct, "traced offset")
	if smcOffset > 0 {
		add(offset+smcOffset, SMCHeader, fmt.Sprintf("adjusted by %d byte copier header", smcOffset))
	} else {
		add(offset-rom.SMCHeaderSize, SMCHeader, fmt.Sprintf("without %d byte copier header", rom.SMCHeaderSize))
	}

	for _, alignment := range alignments {
		down := offset / alignment * alignment
		add(down, Aligned, fmt.Sprintf("aligned down to 0x%X", alignment))
		up := (offset + alignment - 1) / alignment * alignment
		if up-offset <= alignment {
			add(up, Aligned, fmt.Sprintf("aligned up to 0x%X", alignment))
		}
	}

	for _, variant := range bankingVariants {
		add(offset+variant.delta, Banking, fmt.Sprintf("%s (%+#x)", variant.name, variant.delta))
	}
	return candidates
}

// Finding is a candidate offset that holds a sprite.
type Finding struct {
	Candidate
	Sprite     scanner.Result
	Confidence float64
}

// Diagnosis is the result of testing all candidates of a traced offset.
type Diagnosis struct {
	Offset   int
	Findings []Finding // in candidate order
}

// Best returns the finding with the highest confidence.
func (d Diagnosis) Best() (Finding, bool) {
	var best Finding
	found := false
	for _, f := range d.Findings {
		if !found || f.Confidence > best.Confidence {
			best = f
			found = true
		}
	}
	return best, found
}

// Recommendation describes the fix for the traced offset.
func (d Diagnosis) Recommendation() string {
	best, ok := d.Best()
	if !ok {
		return "no sprite found near the traced offset, the data may be uncompressed or use another format"
	}

	switch best.Adjustment {
	case Direct:
		return "traced offset is correct"
	case SMCHeader:
		return "add the copier header size to the traced offsets"
	default:
		return fmt.Sprintf("use offset 0x%06X instead of 0x%06X (%s)", best.Offset, d.Offset, best.Description)
	}
}

// Diagnoser tests traced offsets against the sprite decompressor.
type Diagnoser struct {
	logger    *log.Logger
	extractor *extractor.Extractor
}

// NewDiagnoser returns a new diagnoser.
func NewDiagnoser(logger *log.Logger, ext *extractor.Extractor) *Diagnoser {
	return &Diagnoser{
		logger:    logger,
		extractor: ext,
	}
}

// Diagnose tests all candidates of the traced offset in the image.
func (d *Diagnoser) Diagnose(img *rom.Image, offset int) Diagnosis {
	diagnosis := Diagnosis{Offset: offset}
	for _, candidate := range Candidates(offset, img.Size(), img.SMCOffset()) {
		result, ok := scanner.Probe(d.extractor, img.Data(), candidate.Offset)
		if !ok {
			continue
		}

		d.logger.Debug("Found sprite for traced offset",
			log.Hex("trace", offset),
			log.Hex("offset", candidate.Offset),
			log.Stringer("adjustment", candidate.Adjustment))
		diagnosis.Findings = append(diagnosis.Findings, Finding{
			Candidate:  candidate,
			Sprite:     result,
			Confidence: result.Quality * candidate.Adjustment.Factor(),
		})
	}
	return diagnosis
}

// Suggest diagnoses all traces and returns the best sprite offset of every
// trace as suggestion, sorted by descending confidence.
func (d *Diagnoser) Suggest(ctx context.Context, img *rom.Image, traces []Trace) ([]navigation.SuggestedOffset, error) {
	var suggestions []navigation.SuggestedOffset
	for _, trace := range traces {
		if err := ctx.Err(); err != nil {
			return navigation.Rank(suggestions), fmt.Errorf("diagnosing traces: %w", err)
		}

		best, ok := d.Diagnose(img, trace.Offset).Best()
		if !ok {
			continue
		}
		suggestions = append(suggestions, navigation.SuggestedOffset{
			Offset:      best.Offset,
			Confidence:  best.Confidence,
			Reason:      navigation.ReasonDMATrace,
			Description: fmt.Sprintf("DMA trace 0x%06X, %s", trace.Offset, best.Description),
		})
	}
	return navigation.Rank(suggestions), nil
}

// Confidence thresholds of the validation report.
const (
	HighConfidence   = 0.7
	MediumConfidence = 0.4
)

// Report summarizes the validation of traced offsets.
type Report struct {
	Traces   int
	Valid    int // traces whose offset holds a sprite without adjustment
	Adjusted int // traces that only hold a sprite after an adjustment
	High     []int
	Medium   []int
	Low      []int
}

// Validate tests every traced offset and groups the found sprites by
// confidence.
func (d *Diagnoser) Validate(ctx context.Context, img *rom.Image, traces []Trace) (Report, error) {
	report := Report{Traces: len(traces)}
	for _, trace := range traces {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("validating traces: %w", err)
		}

		best, ok := d.Diagnose(img, trace.Offset).Best()
		if !ok {
			continue
		}
		if best.Adjustment == Direct {
			report.Valid++
		} else {
			report.Adjusted++
		}

		switch {
		case best.Confidence >= HighConfidence:
			report.High = append(report.High, best.Offset)
		case best.Confidence >= MediumConfidence:
			report.Medium = append(report.Medium, best.Offset)
		default:
			report.Low = append(report.Low, best.Offset)
		}
	}
	return report, nil
}
