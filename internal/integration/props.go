package integration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/propsignal/crosscheck/internal/domain"
	"github.com/propsignal/crosscheck/internal/engine"
)

// PropInputs is one prop-generation batch: per-player source records plus
// the sources for the game they play in.
type PropInputs struct {
	Players map[int64][]engine.SourceRecord
	GameID  int64
	Game    []engine.SourceRecord
}

// PropPayload is the validated batch handed to prop generation.
type PropPayload struct {
	Players  map[int64]domain.Record `json:"players"`
	Game     domain.Record           `json:"game,omitempty"`
	Metadata PropMetadata            `json:"validation_metadata"`
}

// PropMetadata summarizes validation quality across the batch.
type PropMetadata struct {
	OverallConfidence float64            `json:"overall_confidence"`
	EntityConfidence  map[string]float64 `json:"entity_confidence"`
	EntitiesValidated int                `json:"entities_validated"`
	Warnings          []string           `json:"warnings,omitempty"`
	ValidatedAt       string             `json:"validated_at"`
}

// ValidatePropInputs validates every player in the batch plus the game
// record and assembles the enhanced payload. Individual entity failures
// degrade to fallback records (or are skipped when fallback finds nothing)
// rather than failing the batch; an empty result is an error.
func (s *Service) ValidatePropInputs(ctx context.Context, in PropInputs) (*PropPayload, error) {
	payload := &PropPayload{
		Players: make(map[int64]domain.Record, len(in.Players)),
		Metadata: PropMetadata{
			EntityConfidence: make(map[string]float64, len(in.Players)+1),
			ValidatedAt:      time.Now().UTC().Format(time.RFC3339),
		},
	}

	var confidenceSum float64
	var confidenceN int

	// stable iteration order keeps warnings and consensus ties reproducible
	playerIDs := make([]int64, 0, len(in.Players))
	for id := range in.Players {
		playerIDs = append(playerIDs, id)
	}
	sort.Slice(playerIDs, func(i, j int) bool { return playerIDs[i] < playerIDs[j] })

	for _, id := range playerIDs {
		enhanced, report, err := s.ValidateAndEnhance(ctx, domain.EntityPlayer, id, in.Players[id])
		if err != nil {
			payload.Metadata.Warnings = append(payload.Metadata.Warnings,
				fmt.Sprintf("player %d: %v", id, err))
			continue
		}
		payload.Players[id] = enhanced
		key := fmt.Sprintf("player_%d", id)
		conf := s.entityConfidence(report)
		payload.Metadata.EntityConfidence[key] = conf
		confidenceSum += conf
		confidenceN++
		if conf < s.cfg.MinConfidenceThreshold {
			payload.Metadata.Warnings = append(payload.Metadata.Warnings,
				fmt.Sprintf("player %d: confidence %.2f below threshold %.2f", id, conf, s.cfg.MinConfidenceThreshold))
		}
	}

	if len(in.Game) > 0 {
		enhanced, report, err := s.ValidateAndEnhance(ctx, domain.EntityGame, in.GameID, in.Game)
		if err != nil {
			payload.Metadata.Warnings = append(payload.Metadata.Warnings,
				fmt.Sprintf("game %d: %v", in.GameID, err))
		} else {
			payload.Game = enhanced
			key := fmt.Sprintf("game_%d", in.GameID)
			conf := s.entityConfidence(report)
			payload.Metadata.EntityConfidence[key] = conf
			confidenceSum += conf
			confidenceN++
		}
	}

	payload.Metadata.EntitiesValidated = confidenceN
	if confidenceN == 0 {
		return nil, fmt.Errorf("prop input validation produced no usable entities")
	}
	payload.Metadata.OverallConfidence = confidenceSum / float64(confidenceN)
	return payload, nil
}

// entityConfidence reads the report confidence; fallback results carry no
// report and count at the fallback discount.
func (s *Service) entityConfidence(report *domain.CrossValidationReport) float64 {
	if report == nil {
		return 0.5
	}
	return report.ConfidenceScore
}
