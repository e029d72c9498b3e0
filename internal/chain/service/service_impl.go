package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	"github.com/rentora/escrow/internal/config"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config
}

// Service mirrors escrow events to the blockchain gateway and keeps a
// durable outbox row per attempt. The local ledger never depends on the
// gateway outcome.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	cfg     config.ChainConfig
	client  *http.Client
	enabled bool
}

func NewService(p Params) chaindomain.Recorder {
	timeout := p.Config.Chain.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("chain.service"),
		genID:   p.GenID,
		cfg:     p.Config.Chain,
		client:  &http.Client{Timeout: timeout},
		enabled: p.Config.Chain.Enabled && p.Config.Chain.Endpoint != "",
	}
}

func (s *Service) MarkOverdue(ctx context.Context, ev chaindomain.ContractOverdue) error {
	return s.record(ctx, ev, ev.ContractCode)
}

func (s *Service) RecordPenalty(ctx context.Context, ev chaindomain.PenaltyRecorded) error {
	return s.record(ctx, ev, ev.ContractCode)
}

func (s *Service) TerminateContract(ctx context.Context, ev chaindomain.ContractTerminated) error {
	return s.record(ctx, ev, ev.ContractCode)
}

func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		`DELETE FROM chain_events WHERE created_at < ?`,
		cutoff,
	)
	return result.RowsAffected, result.Error
}

func (s *Service) record(ctx context.Context, ev chaindomain.Event, contractCode string) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}

	var fields datatypes.JSONMap
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}

	row := &chaindomain.OutboxRow{
		ID:           s.genID.Generate(),
		EventName:    ev.EventName(),
		ContractCode: contractCode,
		Payload:      fields,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("chain outbox write: %w", err)
	}

	if !s.enabled {
		return nil
	}

	submitErr := s.submit(ctx, ev.EventName(), payload)
	now := time.Now().UTC()
	update := map[string]any{"submitted_at": &now}
	if submitErr != nil {
		update = map[string]any{"last_error": submitErr.Error()}
		obsmetrics.Ledger().IncMirrorFailure("chain")
	}
	if err := s.db.WithContext(ctx).
		Model(&chaindomain.OutboxRow{}).
		Where("id = ?", row.ID).
		Updates(update).Error; err != nil {
		s.log.Warn("chain outbox update failed", zap.Error(err))
	}
	return submitErr
}

func (s *Service) submit(ctx context.Context, name string, payload []byte) error {
	body, err := json.Marshal(map[string]json.RawMessage{
		"event":   json.RawMessage(fmt.Sprintf("%q", name)),
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chain gateway: unexpected status %d", resp.StatusCode)
	}
	return nil
}
