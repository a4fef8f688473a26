package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightseth/eden-genesis-registry-sub000/pkg/models"
)

type registryDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry is the narrow store surface the gates, monitor and scorer use.
// Callers bound every call with a context deadline.
type Registry struct {
	DB registryDB
}

func NewRegistry(db registryDB) *Registry {
	return &Registry{DB: db}
}

// ApplyWrite lands a gated write. Records live in one jsonb-keyed table per
// the abstract keyed store model; relational projections (agents, media) are
// maintained by triggers out of scope here.
// ErrRecordNotFound reports an UPDATE or DELETE against a record id that
// does not exist in the target collection.
var ErrRecordNotFound = errors.New("record not found")

func (r *Registry) ApplyWrite(ctx context.Context, collection models.Collection, op models.Operation, recordID string, payload json.RawMessage) error {
	switch op {
	case models.OpCreate:
		_, err := r.DB.Exec(ctx, `
			INSERT INTO registry_records (collection, record_id, payload, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, string(collection), recordID, payload)
		return err
	case models.OpUpdate:
		cmd, err := r.DB.Exec(ctx, `
			UPDATE registry_records SET payload=$3, updated_at=now()
			WHERE collection=$1 AND record_id=$2
		`, string(collection), recordID, payload)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("no %s record with id %q: %w", collection, recordID, ErrRecordNotFound)
		}
		return nil
	case models.OpDelete:
		cmd, err := r.DB.Exec(ctx, `
			DELETE FROM registry_records WHERE collection=$1 AND record_id=$2
		`, string(collection), recordID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("no %s record with id %q: %w", collection, recordID, ErrRecordNotFound)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownOperation, op)
	}
}

// ActiveAgentsMissingTrainer lists active agents with no trainer assigned.
func (r *Registry) ActiveAgentsMissingTrainer(ctx context.Context) (total int, missing []string, err error) {
	row := r.DB.QueryRow(ctx, `SELECT count(*) FROM agents WHERE status=$1`, models.AgentStatusActive)
	if err = row.Scan(&total); err != nil {
		return 0, nil, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT handle FROM agents
		WHERE status=$1 AND (trainer_id IS NULL OR trainer_id='')
		ORDER BY handle
	`, models.AgentStatusActive)
	if err != nil {
		return total, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err == nil {
			missing = append(missing, handle)
		}
	}
	return total, missing, rows.Err()
}

// ActiveAgentsMissingEconomics lists active agents without an economics row.
func (r *Registry) ActiveAgentsMissingEconomics(ctx context.Context) (total int, missing []string, err error) {
	row := r.DB.QueryRow(ctx, `SELECT count(*) FROM agents WHERE status=$1`, models.AgentStatusActive)
	if err = row.Scan(&total); err != nil {
		return 0, nil, err
	}
	rows, err := r.DB.Query(ctx, `
		SELECT a.handle FROM agents a
		LEFT JOIN agent_economics e ON e.agent_id = a.id
		WHERE a.status=$1 AND e.agent_id IS NULL
		ORDER BY a.handle
	`, models.AgentStatusActive)
	if err != nil {
		return total, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err == nil {
			missing = append(missing, handle)
		}
	}
	return total, missing, rows.Err()
}

// CoverageStats feeds the static-fallback detection heuristic.
type CoverageStats struct {
	ActiveAgents      int
	TrainerCount      int
	EconomicsCoverage float64
	ProfileCoverage   float64
}

func (r *Registry) Coverage(ctx context.Context) (CoverageStats, error) {
	var stats CoverageStats
	// EXISTS keeps the counts one-per-agent even if the joined tables ever
	// hold duplicate rows for an agent.
	row := r.DB.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status=$1),
			count(DISTINCT trainer_id) FILTER (WHERE trainer_id IS NOT NULL AND trainer_id <> ''),
			count(*) FILTER (WHERE status=$1 AND EXISTS (SELECT 1 FROM agent_economics e WHERE e.agent_id = a.id)),
			count(*) FILTER (WHERE status=$1 AND EXISTS (SELECT 1 FROM agent_profiles p WHERE p.agent_id = a.id))
		FROM agents a
	`, models.AgentStatusActive)
	var econRows, profileRows int
	if err := row.Scan(&stats.ActiveAgents, &stats.TrainerCount, &econRows, &profileRows); err != nil {
		return stats, err
	}
	if stats.ActiveAgents > 0 {
		stats.EconomicsCoverage = float64(econRows) / float64(stats.ActiveAgents)
		stats.ProfileCoverage = float64(profileRows) / float64(stats.ActiveAgents)
	}
	return stats, nil
}

// OrphanMediaCount counts media rows referencing a deleted agent.
func (r *Registry) OrphanMediaCount(ctx context.Context) (int, error) {
	var n int
	row := r.DB.QueryRow(ctx, `
		SELECT count(*) FROM agent_media m
		LEFT JOIN agents a ON a.id = m.agent_id
		WHERE a.id IS NULL
	`)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AgentSnapshot fetches everything the scorer needs in one pass.
func (r *Registry) AgentSnapshot(ctx context.Context, agentID string) (models.AgentSnapshot, error) {
	var snap models.AgentSnapshot
	var trainerID, bio, avatar *string
	var social []string
	var lastActive, createdAt *time.Time
	row := r.DB.QueryRow(ctx, `
		SELECT a.id, a.handle, a.display_name, a.status, a.trainer_id, a.founding_cohort,
			a.created_at, a.last_active_at,
			COALESCE(p.statement, ''), COALESCE(p.avatar_url, ''), COALESCE(p.social_handles, '{}'),
			COALESCE(p.checklist_done, 0), COALESCE(p.checklist_total, 0),
			(SELECT count(*) FROM agent_media m WHERE m.agent_id = a.id),
			(SELECT count(*) FROM agent_media m WHERE m.agent_id = a.id AND m.published),
			EXISTS (SELECT 1 FROM agent_economics e WHERE e.agent_id = a.id)
		FROM agents a
		LEFT JOIN agent_profiles p ON p.agent_id = a.id
		WHERE a.id = $1
	`, agentID)
	err := row.Scan(
		&snap.ID, &snap.Handle, &snap.DisplayName, &snap.Status, &trainerID, &snap.GenesisCohort,
		&createdAt, &lastActive,
		&bio, &avatar, &social,
		&snap.ChecklistDone, &snap.ChecklistTotal,
		&snap.ArtifactCount, &snap.PublishedCount,
		&snap.HasEconomics,
	)
	if err != nil {
		return snap, err
	}
	if trainerID != nil {
		snap.TrainerID = *trainerID
	}
	if bio != nil {
		snap.Bio = *bio
	}
	if avatar != nil {
		snap.AvatarURL = *avatar
	}
	snap.SocialHandles = social
	if createdAt != nil {
		snap.CreatedAt = *createdAt
	}
	if lastActive != nil {
		snap.LastActiveAt = *lastActive
	}
	return snap, nil
}
