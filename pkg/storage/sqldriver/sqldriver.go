// Package sqldriver provides the SQL implementation of storage.Driver shared by
// the sqlite and postgres drivers. Queries are built with ent's dialect-aware
// SQL builder so the same code emits "?" placeholders for SQLite and "$n"
// placeholders for PostgreSQL.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/keepsake/pkg/storage"
)

const (
	factsTable    = "memory_facts"
	messagesTable = "memory_messages"
	actionsTable  = "memory_actions"
)

var factColumns = []string{
	"id", "guild_id", "channel_id", "subject", "fact", "fact_type",
	"evidence_text", "source_message_id", "confidence", "created_at",
}

// Driver implements storage.Driver over a database/sql handle.
type Driver struct {
	DB      *sql.DB
	Dialect string
}

// Migrate creates the fact, message, and action tables when they do not exist.
func (d *Driver) Migrate(ctx context.Context) error {
	for _, stmt := range schema(d.Dialect) {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (d *Driver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(d.Dialect)
}

// AddFact inserts fact unless an identical live row already exists.
func (d *Driver) AddFact(ctx context.Context, fact *storage.Fact) (bool, error) {
	if fact == nil {
		return false, errors.New("cannot store nil fact")
	}

	_, err := d.GetFactBySubjectAndFact(ctx, fact.GuildID, fact.Subject, fact.Fact)
	switch {
	case err == nil:
		return false, nil
	case !errors.As(err, &storage.NotFoundError{}):
		return false, err
	}

	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	insert := d.builder().Insert(factsTable).
		Columns(factColumns[1:]...).
		Values(
			fact.GuildID, fact.ChannelID, fact.Subject, fact.Fact, string(fact.FactType),
			fact.EvidenceText, fact.SourceMessageID, fact.Confidence, fact.CreatedAt.UTC(),
		)

	if d.Dialect == dialect.Postgres {
		query, args := insert.Returning("id").Query()
		if err := d.DB.QueryRowContext(ctx, query, args...).Scan(&fact.ID); err != nil {
			return false, fmt.Errorf("inserting fact: %w", err)
		}
		return true, nil
	}

	query, args := insert.Query()
	res, err := d.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting fact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("getting fact id: %w", err)
	}
	fact.ID = id

	return true, nil
}

// GetFactBySubjectAndFact returns the live fact matching the exact text.
func (d *Driver) GetFactBySubjectAndFact(ctx context.Context, guildID, subject, fact string) (*storage.Fact, error) {
	b := d.builder()
	query, args := b.Select(factColumns...).
		From(b.Table(factsTable)).
		Where(entsql.And(
			entsql.EQ("guild_id", guildID),
			entsql.EQ("subject", subject),
			entsql.EQ("fact", fact),
			entsql.IsNull("archived_at"),
		)).
		Limit(1).
		Query()

	facts, err := d.queryFacts(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, storage.NotFoundError{GuildID: guildID, Subject: subject}
	}
	return facts[0], nil
}

// FactsForSubjects returns live facts for the subjects, newest first.
func (d *Driver) FactsForSubjects(ctx context.Context, subjects []string, q storage.FactQuery) ([]*storage.Fact, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	in := make([]any, len(subjects))
	for i, s := range subjects {
		in[i] = s
	}

	preds := []*entsql.Predicate{
		entsql.In("subject", in...),
		entsql.IsNull("archived_at"),
	}
	if q.GuildID != "" {
		preds = append(preds, entsql.EQ("guild_id", q.GuildID))
	}

	return d.selectFacts(ctx, preds, q.Limit)
}

// FactsForScope returns live facts in a guild, newest first.
func (d *Driver) FactsForScope(ctx context.Context, q storage.FactQuery) ([]*storage.Fact, error) {
	preds := []*entsql.Predicate{entsql.IsNull("archived_at")}
	if q.GuildID != "" {
		preds = append(preds, entsql.EQ("guild_id", q.GuildID))
	}

	return d.selectFacts(ctx, preds, q.Limit)
}

func (d *Driver) selectFacts(ctx context.Context, preds []*entsql.Predicate, limit int) ([]*storage.Fact, error) {
	b := d.builder()
	sel := b.Select(factColumns...).
		From(b.Table(factsTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}

	query, args := sel.Query()
	return d.queryFacts(ctx, query, args)
}

func (d *Driver) queryFacts(ctx context.Context, query string, args []any) ([]*storage.Fact, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	var facts []*storage.Fact
	for rows.Next() {
		var (
			f        storage.Fact
			factType string
		)
		if err := rows.Scan(
			&f.ID, &f.GuildID, &f.ChannelID, &f.Subject, &f.Fact, &factType,
			&f.EvidenceText, &f.SourceMessageID, &f.Confidence, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		f.FactType = storage.ParseFactType(factType)
		facts = append(facts, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}
	return facts, nil
}

// ArchiveOldFacts archives all but the newest keep live facts for the subject.
func (d *Driver) ArchiveOldFacts(ctx context.Context, guildID, subject string, keep int) (int, error) {
	b := d.builder()
	query, args := b.Select("id").
		From(b.Table(factsTable)).
		Where(entsql.And(
			entsql.EQ("guild_id", guildID),
			entsql.EQ("subject", subject),
			entsql.IsNull("archived_at"),
		)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("querying live facts: %w", err)
	}

	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning fact id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating fact ids: %w", err)
	}

	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return 0, nil
	}
	stale := ids[keep:]

	update, uargs := d.builder().Update(factsTable).
		Set("archived_at", time.Now().UTC()).
		Where(entsql.In("id", stale...)).
		Query()
	if _, err := d.DB.ExecContext(ctx, update, uargs...); err != nil {
		return 0, fmt.Errorf("archiving facts: %w", err)
	}

	return len(stale), nil
}

// AddMessage records a cleaned chat message. Re-ingesting the same message id
// is a no-op.
func (d *Driver) AddMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query, args := d.builder().Insert(messagesTable).
		Columns("message_id", "guild_id", "channel_id", "author_id", "author_name", "content", "created_at").
		Values(msg.MessageID, msg.GuildID, msg.ChannelID, msg.AuthorID, msg.AuthorName, msg.Content, msg.CreatedAt.UTC()).
		OnConflict(entsql.ConflictColumns("message_id"), entsql.DoNothing()).
		Query()

	if _, err := d.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// SearchMessages returns guild messages containing any query token, newest first.
func (d *Driver) SearchMessages(ctx context.Context, q storage.MessageQuery) ([]*storage.Message, error) {
	if len(q.Tokens) == 0 {
		return nil, nil
	}

	anyToken := make([]*entsql.Predicate, len(q.Tokens))
	for i, tok := range q.Tokens {
		anyToken[i] = entsql.ContainsFold("content", tok)
	}

	preds := []*entsql.Predicate{entsql.Or(anyToken...)}
	if q.GuildID != "" {
		preds = append(preds, entsql.EQ("guild_id", q.GuildID))
	}

	b := d.builder()
	sel := b.Select("message_id", "guild_id", "channel_id", "author_id", "author_name", "content", "created_at").
		From(b.Table(messagesTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("created_at"))
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}

	query, args := sel.Query()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*storage.Message
	for rows.Next() {
		var m storage.Message
		if err := rows.Scan(&m.MessageID, &m.GuildID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// LogAction appends an entry to the action audit log.
func (d *Driver) LogAction(ctx context.Context, entry storage.ActionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadata := "{}"
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling action metadata: %w", err)
		}
		metadata = string(raw)
	}

	query, args := d.builder().Insert(actionsTable).
		Columns("kind", "guild_id", "channel_id", "user_id", "message_id", "content", "metadata", "created_at").
		Values(entry.Kind, entry.GuildID, entry.ChannelID, entry.UserID, entry.MessageID, entry.Content, metadata, entry.CreatedAt.UTC()).
		Query()

	if _, err := d.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error {
	return d.DB.Close()
}

var _ storage.Driver = (*Driver)(nil)
