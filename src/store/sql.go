package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

// sqlStore is the database/sql implementation shared by the SQLite and
// Postgres stores. Only bind syntax, time encoding and conflict detection
// differ between them.
type sqlStore struct {
	db       *sql.DB
	dialect  query.Dialect
	isUnique func(err error) bool
	// upsertBuild is the dialect's INSERT ... ON CONFLICT statement.
	upsertBuild string
}

const buildColumns = `organization, project, number, definition_id, definition_name, repository,
	kind, result, target_branch, pull_request, queue_time, start_time, finish_time, web_url`

const recordColumns = `organization, project, number, reason, issue_uri,
	definition_name, job_name, message, build_started, created_at`

func (s *sqlStore) ph(n int) string {
	return s.dialect.Placeholder(n)
}

// timeArg encodes a timestamp; the zero time is stored as NULL.
func (s *sqlStore) timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return s.dialect.TimeArg(t)
}

func (s *sqlStore) timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.timeArg(*t)
}

// decodeTime accepts both storage forms: unix seconds and native timestamps.
func decodeTime(v any) time.Time {
	switch x := v.(type) {
	case int64:
		return time.Unix(x, 0).UTC()
	case time.Time:
		return x.UTC()
	default:
		return time.Time{}
	}
}

func decodeTimePtr(v any) *time.Time {
	t := decodeTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *sqlStore) keyWhere() string {
	return fmt.Sprintf("organization = %s AND project = %s AND number = %s AND reason = %s AND issue_uri = %s",
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
}

func keyArgs(key contracts.TriageKey) []any {
	return []any{key.Build.Organization, key.Build.Project, key.Build.Number, string(key.Reason), key.IssueURI}
}

func (s *sqlStore) Exists(ctx context.Context, key contracts.TriageKey) (bool, error) {
	q := "SELECT 1 FROM triage_records WHERE " + s.keyWhere()

	var one int
	err := s.db.QueryRowContext(ctx, q, keyArgs(key)...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check triage record: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordIfAbsent(ctx context.Context, rec contracts.TriageRecord) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	q := fmt.Sprintf(`INSERT INTO triage_records (%s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		recordColumns, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))

	_, err := s.db.ExecContext(ctx, q,
		rec.Build.Organization,
		rec.Build.Project,
		rec.Build.Number,
		string(rec.Reason),
		rec.IssueURI,
		rec.DefinitionName,
		rec.JobName,
		rec.Message,
		s.timeArg(rec.BuildStarted),
		s.timeArg(rec.CreatedAt),
	)
	if err != nil {
		if s.isUnique(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record triage: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordsForIssue(ctx context.Context, issueURI string) ([]contracts.TriageRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM triage_records WHERE issue_uri = %s
		ORDER BY build_started DESC, number DESC`, recordColumns, s.ph(1))

	rows, err := s.db.QueryContext(ctx, q, issueURI)
	if err != nil {
		return nil, fmt.Errorf("failed to query triage records: %w", err)
	}
	defer rows.Close()

	var records []contracts.TriageRecord
	for rows.Next() {
		var rec contracts.TriageRecord
		var reason string
		var started, created any
		if err := rows.Scan(
			&rec.Build.Organization,
			&rec.Build.Project,
			&rec.Build.Number,
			&reason,
			&rec.IssueURI,
			&rec.DefinitionName,
			&rec.JobName,
			&rec.Message,
			&started,
			&created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan triage record: %w", err)
		}
		rec.Reason = contracts.TriageReason(reason)
		rec.BuildStarted = decodeTime(started)
		rec.CreatedAt = decodeTime(created)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triage records: %w", err)
	}

	// NULL ordering differs between engines; settle it here.
	sortRecords(records)
	return records, nil
}

func (s *sqlStore) UpsertBuild(ctx context.Context, b contracts.Build) error {
	_, err := s.db.ExecContext(ctx, s.upsertBuild,
		b.Key.Organization,
		b.Key.Project,
		b.Key.Number,
		b.DefinitionID,
		b.DefinitionName,
		b.Repository,
		string(b.Kind),
		string(b.Result),
		b.TargetBranch,
		b.PullRequest,
		s.timeArg(b.QueueTime),
		s.timePtrArg(b.StartTime),
		s.timePtrArg(b.FinishTime),
		b.WebURL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert build %s: %w", b.Key, err)
	}
	return nil
}

func (s *sqlStore) SearchBuilds(ctx context.Context, req *query.BuildsRequest) ([]contracts.Build, error) {
	where, args := req.SQLWhere(query.Now(), s.dialect)

	q := "SELECT " + buildColumns + " FROM builds"
	if where != "" {
		q += " WHERE " + where
	}
	args = append(args, req.Limit(query.DefaultBuildCount))
	q += fmt.Sprintf(" ORDER BY COALESCE(start_time, queue_time) DESC, number DESC LIMIT %s", s.ph(len(args)))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search builds: %w", err)
	}
	defer rows.Close()

	var builds []contracts.Build
	for rows.Next() {
		var b contracts.Build
		var kind, result string
		var queued, started, finished any
		if err := rows.Scan(
			&b.Key.Organization,
			&b.Key.Project,
			&b.Key.Number,
			&b.DefinitionID,
			&b.DefinitionName,
			&b.Repository,
			&kind,
			&result,
			&b.TargetBranch,
			&b.PullRequest,
			&queued,
			&started,
			&finished,
			&b.WebURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Kind = contracts.BuildKind(kind)
		b.Result = contracts.TaskResult(result)
		b.QueueTime = decodeTime(queued)
		b.StartTime = decodeTimePtr(started)
		b.FinishTime = decodeTimePtr(finished)
		builds = append(builds, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}
	return builds, nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
