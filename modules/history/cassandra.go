package history

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gocql/gocql"
	"golang.org/x/sync/errgroup"

	"github.com/thenetcircle/dino-sub002/config"
	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Table shapes. The authoritative table clusters by sender then published
// time; the views re-key the same row for the remaining read patterns. The
// by-id view stores only the key tuple, which keeps it half the size of a
// full duplicate at the cost of one extra query on the infrequent delete
// path.
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS %s.messages (
		target_id varchar,
		from_user_id varchar,
		published varchar,
		time_stamp bigint,
		message_id varchar,
		from_user_name varchar,
		target_name varchar,
		body text,
		domain varchar,
		channel_id varchar,
		channel_name varchar,
		deleted boolean,
		PRIMARY KEY (target_id, from_user_id, published, time_stamp)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.messages_by_id (
		message_id varchar,
		target_id varchar,
		from_user_id varchar,
		published varchar,
		time_stamp bigint,
		PRIMARY KEY (message_id, target_id, from_user_id, published, time_stamp)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.messages_by_time_stamp (
		target_id varchar,
		time_stamp bigint,
		message_id varchar,
		from_user_id varchar,
		from_user_name varchar,
		target_name varchar,
		published varchar,
		body text,
		domain varchar,
		channel_id varchar,
		channel_name varchar,
		deleted boolean,
		PRIMARY KEY (target_id, time_stamp, message_id)
	) WITH CLUSTERING ORDER BY (time_stamp DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.messages_by_time_stamp_non_deleted (
		target_id varchar,
		time_stamp bigint,
		message_id varchar,
		from_user_id varchar,
		from_user_name varchar,
		target_name varchar,
		published varchar,
		body text,
		domain varchar,
		channel_id varchar,
		channel_name varchar,
		PRIMARY KEY (target_id, time_stamp, message_id)
	) WITH CLUSTERING ORDER BY (time_stamp DESC)`,
	`CREATE TABLE IF NOT EXISTS %s.messages_by_from_user_id (
		from_user_id varchar,
		target_id varchar,
		time_stamp bigint,
		message_id varchar,
		from_user_name varchar,
		target_name varchar,
		published varchar,
		body text,
		domain varchar,
		channel_id varchar,
		channel_name varchar,
		deleted boolean,
		PRIMARY KEY (from_user_id, target_id, time_stamp, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.msg_acks (
		receiver_id varchar,
		message_id varchar,
		status int,
		target_id varchar,
		PRIMARY KEY (receiver_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.acks_by_user_and_status (
		receiver_id varchar,
		status int,
		message_id varchar,
		PRIMARY KEY (receiver_id, status, message_id)
	)`,
}

const messageColumns = "message_id, from_user_id, from_user_name, target_id, target_name, published, time_stamp, body, domain, channel_id, channel_name"

// CassandraStore is the wide-column message log.
type CassandraStore struct {
	cfg     *config.Config
	logger  types.Logger
	session *gocql.Session
	ks      string
}

func NewCassandraStore(cfg *config.Config, logger types.Logger) *CassandraStore {
	return &CassandraStore{cfg: cfg, logger: logger, ks: cfg.Keyspace()}
}

// Init connects and idempotently creates the production keyspace, its test
// twin, and all tables in both.
func (s *CassandraStore) Init(ctx context.Context) error {
	cluster := gocql.NewCluster(s.cfg.Storage.Hosts...)
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to cassandra: %w", err)
	}
	s.session = session

	replication := s.cfg.Storage.Replication
	if replication < 1 {
		replication = 1
	}
	strategy := s.cfg.Storage.Strategy
	if strategy == "" {
		strategy = "SimpleStrategy"
	}

	for _, keyspace := range []string{s.ks, s.ks + "test"} {
		create := fmt.Sprintf(
			"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': '%s', 'replication_factor': %d}",
			keyspace, strategy, replication,
		)
		if err := s.session.Query(create).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to create keyspace %s: %w", keyspace, err)
		}
		for _, stmt := range tableStatements {
			if err := s.session.Query(fmt.Sprintf(stmt, keyspace)).WithContext(ctx).Exec(); err != nil {
				return fmt.Errorf("failed to create table in %s: %w", keyspace, err)
			}
		}
	}

	s.logger.Info("Column store schema ready", "keyspace", s.ks, "hosts", s.cfg.Storage.Hosts)
	return nil
}

func (s *CassandraStore) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

// StoreMessage writes the row to the authoritative table and every view in
// parallel. A failure in any write fails the whole insert.
func (s *CassandraStore) StoreMessage(ctx context.Context, msg chat.Message) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.session.Query(
			fmt.Sprintf("INSERT INTO %s.messages (%s, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false)", s.ks, messageColumns),
			msg.ID, msg.FromUserID, msg.FromUserName, msg.TargetID, msg.TargetName,
			msg.Published, msg.Timestamp, msg.Body, msg.Domain, msg.ChannelID, msg.ChannelName,
		).WithContext(ctx).Exec()
	})
	group.Go(func() error {
		return s.session.Query(
			fmt.Sprintf("INSERT INTO %s.messages_by_id (message_id, target_id, from_user_id, published, time_stamp) VALUES (?, ?, ?, ?, ?)", s.ks),
			msg.ID, msg.TargetID, msg.FromUserID, msg.Published, msg.Timestamp,
		).WithContext(ctx).Exec()
	})
	group.Go(func() error {
		return s.session.Query(
			fmt.Sprintf("INSERT INTO %s.messages_by_time_stamp (%s, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false)", s.ks, messageColumns),
			msg.ID, msg.FromUserID, msg.FromUserName, msg.TargetID, msg.TargetName,
			msg.Published, msg.Timestamp, msg.Body, msg.Domain, msg.ChannelID, msg.ChannelName,
		).WithContext(ctx).Exec()
	})
	group.Go(func() error {
		return s.session.Query(
			fmt.Sprintf("INSERT INTO %s.messages_by_time_stamp_non_deleted (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.ks, messageColumns),
			msg.ID, msg.FromUserID, msg.FromUserName, msg.TargetID, msg.TargetName,
			msg.Published, msg.Timestamp, msg.Body, msg.Domain, msg.ChannelID, msg.ChannelName,
		).WithContext(ctx).Exec()
	})
	group.Go(func() error {
		return s.session.Query(
			fmt.Sprintf("INSERT INTO %s.messages_by_from_user_id (%s, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false)", s.ks, messageColumns),
			msg.ID, msg.FromUserID, msg.FromUserName, msg.TargetID, msg.TargetName,
			msg.Published, msg.Timestamp, msg.Body, msg.Domain, msg.ChannelID, msg.ChannelName,
		).WithContext(ctx).Exec()
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to store message %s: %w", msg.ID, err)
	}
	return nil
}

// messageKey is the primary-key tuple of the authoritative table.
type messageKey struct {
	targetID   string
	fromUserID string
	published  string
	timestamp  int64
}

func (s *CassandraStore) keysForID(ctx context.Context, messageID string) ([]messageKey, error) {
	iter := s.session.Query(
		fmt.Sprintf("SELECT target_id, from_user_id, published, time_stamp FROM %s.messages_by_id WHERE message_id = ?", s.ks),
		messageID,
	).WithContext(ctx).Iter()

	var keys []messageKey
	var key messageKey
	for iter.Scan(&key.targetID, &key.fromUserID, &key.published, &key.timestamp) {
		keys = append(keys, key)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to resolve message %s: %w", messageID, err)
	}
	return keys, nil
}

func (s *CassandraStore) GetMessage(ctx context.Context, messageID string) (chat.Message, error) {
	keys, err := s.keysForID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	if len(keys) == 0 {
		return chat.Message{}, ErrNoSuchMessage
	}

	return s.readRow(ctx, keys[0])
}

// readRow fetches one authoritative row by its full key tuple.
func (s *CassandraStore) readRow(ctx context.Context, key messageKey) (chat.Message, error) {
	var msg chat.Message
	err := s.session.Query(
		fmt.Sprintf("SELECT %s, deleted FROM %s.messages WHERE target_id = ? AND from_user_id = ? AND published = ? AND time_stamp = ?", messageColumns, s.ks),
		key.targetID, key.fromUserID, key.published, key.timestamp,
	).WithContext(ctx).Scan(
		&msg.ID, &msg.FromUserID, &msg.FromUserName, &msg.TargetID, &msg.TargetName,
		&msg.Published, &msg.Timestamp, &msg.Body, &msg.Domain, &msg.ChannelID, &msg.ChannelName,
		&msg.Deleted,
	)
	if err == gocql.ErrNotFound {
		return chat.Message{}, ErrNoSuchMessage
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to read message row: %w", err)
	}
	return msg, nil
}

func (s *CassandraStore) Messages(ctx context.Context, targetID string) ([]chat.Message, error) {
	return s.scanMessages(ctx,
		fmt.Sprintf("SELECT %s, deleted FROM %s.messages WHERE target_id = ?", messageColumns, s.ks),
		true, targetID)
}

func (s *CassandraStore) HistoryLatest(ctx context.Context, targetID string, limit int) ([]chat.Message, error) {
	query := fmt.Sprintf("SELECT %s FROM %s.messages_by_time_stamp_non_deleted WHERE target_id = ?", messageColumns, s.ks)
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return s.scanMessages(ctx, query, false, targetID)
}

func (s *CassandraStore) HistorySince(ctx context.Context, targetID string, since int64) ([]chat.Message, error) {
	return s.scanMessages(ctx,
		fmt.Sprintf("SELECT %s, deleted FROM %s.messages_by_time_stamp WHERE target_id = ? AND time_stamp >= ?", messageColumns, s.ks),
		true, targetID, since)
}

func (s *CassandraStore) HistoryBetween(ctx context.Context, targetID string, from, to int64) ([]chat.Message, error) {
	return s.scanMessages(ctx,
		fmt.Sprintf("SELECT %s, deleted FROM %s.messages_by_time_stamp WHERE target_id = ? AND time_stamp >= ? AND time_stamp <= ?", messageColumns, s.ks),
		true, targetID, from, to)
}

func (s *CassandraStore) MessagesBySender(ctx context.Context, senderID, targetID string, from, to int64) ([]chat.Message, error) {
	query := fmt.Sprintf("SELECT %s, deleted FROM %s.messages_by_from_user_id WHERE from_user_id = ?", messageColumns, s.ks)
	args := []any{senderID}
	if targetID != "" {
		query += " AND target_id = ?"
		args = append(args, targetID)
		if from != 0 {
			query += " AND time_stamp >= ?"
			args = append(args, from)
		}
		if to != 0 {
			query += " AND time_stamp <= ?"
			args = append(args, to)
		}
		return s.scanMessages(ctx, query, true, args...)
	}

	// time_stamp clusters after target_id, so a targetless scan cannot
	// restrict it server-side; the window is applied to the scanned rows.
	rows, err := s.scanMessages(ctx, query, true, args...)
	if err != nil {
		return nil, err
	}
	if from == 0 && to == 0 {
		return rows, nil
	}
	out := rows[:0]
	for _, msg := range rows {
		if from != 0 && msg.Timestamp < from {
			continue
		}
		if to != 0 && msg.Timestamp > to {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *CassandraStore) scanMessages(ctx context.Context, query string, withDeleted bool, args ...any) ([]chat.Message, error) {
	iter := s.session.Query(query, args...).WithContext(ctx).Iter()

	out := []chat.Message{}
	for {
		var msg chat.Message
		dest := []any{
			&msg.ID, &msg.FromUserID, &msg.FromUserName, &msg.TargetID, &msg.TargetName,
			&msg.Published, &msg.Timestamp, &msg.Body, &msg.Domain, &msg.ChannelID, &msg.ChannelName,
		}
		if withDeleted {
			dest = append(dest, &msg.Deleted)
		}
		if !iter.Scan(dest...) {
			break
		}
		out = append(out, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	return out, nil
}

func (s *CassandraStore) DeleteMessage(ctx context.Context, messageID string, clearBody bool) error {
	return s.markDeleted(ctx, messageID, true, clearBody)
}

func (s *CassandraStore) UndeleteMessage(ctx context.Context, messageID string) error {
	return s.markDeleted(ctx, messageID, false, false)
}

// markDeleted runs the three-step soft delete: resolve the key tuple via the
// by-id view, read the authoritative row, then rewrite the deleted flag in
// every view. The non-deleted view holds visibility by row presence, so the
// row is removed from it on delete and reinserted on undelete.
func (s *CassandraStore) markDeleted(ctx context.Context, messageID string, deleted, clearBody bool) error {
	keys, err := s.keysForID(ctx, messageID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return ErrNoSuchMessage
	}
	if len(keys) > 1 {
		s.logger.Warn("Message id resolves to multiple rows, updating all",
			"messageID", messageID, "rows", len(keys))
	}

	for _, key := range keys {
		msg, err := s.readRow(ctx, key)
		if err != nil {
			return err
		}
		body := msg.Body
		if clearBody {
			body = ""
		}

		batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		batch.Query(
			fmt.Sprintf("UPDATE %s.messages SET deleted = ?, body = ? WHERE target_id = ? AND from_user_id = ? AND published = ? AND time_stamp = ?", s.ks),
			deleted, body, key.targetID, key.fromUserID, key.published, key.timestamp,
		)
		batch.Query(
			fmt.Sprintf("UPDATE %s.messages_by_time_stamp SET deleted = ?, body = ? WHERE target_id = ? AND time_stamp = ? AND message_id = ?", s.ks),
			deleted, body, key.targetID, key.timestamp, messageID,
		)
		batch.Query(
			fmt.Sprintf("UPDATE %s.messages_by_from_user_id SET deleted = ?, body = ? WHERE from_user_id = ? AND target_id = ? AND time_stamp = ? AND message_id = ?", s.ks),
			deleted, body, key.fromUserID, key.targetID, key.timestamp, messageID,
		)
		if deleted {
			batch.Query(
				fmt.Sprintf("DELETE FROM %s.messages_by_time_stamp_non_deleted WHERE target_id = ? AND time_stamp = ? AND message_id = ?", s.ks),
				key.targetID, key.timestamp, messageID,
			)
		} else {
			batch.Query(
				fmt.Sprintf("INSERT INTO %s.messages_by_time_stamp_non_deleted (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.ks, messageColumns),
				msg.ID, msg.FromUserID, msg.FromUserName, msg.TargetID, msg.TargetName,
				msg.Published, msg.Timestamp, body, msg.Domain, msg.ChannelID, msg.ChannelName,
			)
		}
		if err := s.session.ExecuteBatch(batch); err != nil {
			return fmt.Errorf("failed to update delete state of message %s: %w", messageID, err)
		}
	}
	return nil
}

func (s *CassandraStore) AddAcks(ctx context.Context, targetID, receiverID string, messageIDs []string, status int) error {
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, messageID := range messageIDs {
		batch.Query(
			fmt.Sprintf("INSERT INTO %s.msg_acks (receiver_id, message_id, status, target_id) VALUES (?, ?, ?, ?)", s.ks),
			receiverID, messageID, status, targetID,
		)
		batch.Query(
			fmt.Sprintf("INSERT INTO %s.acks_by_user_and_status (receiver_id, status, message_id) VALUES (?, ?, ?)", s.ks),
			receiverID, status, messageID,
		)
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to add acks for receiver %s: %w", receiverID, err)
	}
	return nil
}

func (s *CassandraStore) UpdateAcks(ctx context.Context, receiverID string, messageIDs []string, status int) error {
	current, err := s.AcksFor(ctx, receiverID, messageIDs)
	if err != nil {
		return err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, messageID := range messageIDs {
		old, ok := current[messageID]
		if !ok || old >= status {
			continue
		}
		batch.Query(
			fmt.Sprintf("UPDATE %s.msg_acks SET status = ? WHERE receiver_id = ? AND message_id = ?", s.ks),
			status, receiverID, messageID,
		)
		batch.Query(
			fmt.Sprintf("DELETE FROM %s.acks_by_user_and_status WHERE receiver_id = ? AND status = ? AND message_id = ?", s.ks),
			receiverID, old, messageID,
		)
		batch.Query(
			fmt.Sprintf("INSERT INTO %s.acks_by_user_and_status (receiver_id, status, message_id) VALUES (?, ?, ?)", s.ks),
			receiverID, status, messageID,
		)
	}
	if len(batch.Entries) == 0 {
		return nil
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to update acks for receiver %s: %w", receiverID, err)
	}
	return nil
}

func (s *CassandraStore) AcksFor(ctx context.Context, receiverID string, messageIDs []string) (map[string]int, error) {
	iter := s.session.Query(
		fmt.Sprintf("SELECT message_id, status FROM %s.msg_acks WHERE receiver_id = ?", s.ks),
		receiverID,
	).WithContext(ctx).Iter()

	all := make(map[string]int)
	var messageID string
	var status int
	for iter.Scan(&messageID, &status) {
		all[messageID] = status
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read acks for receiver %s: %w", receiverID, err)
	}

	if len(messageIDs) == 0 {
		return all, nil
	}
	out := make(map[string]int, len(messageIDs))
	for _, id := range messageIDs {
		if status, ok := all[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (s *CassandraStore) AcksForStatus(ctx context.Context, receiverID string, status int) ([]string, error) {
	iter := s.session.Query(
		fmt.Sprintf("SELECT message_id FROM %s.acks_by_user_and_status WHERE receiver_id = ? AND status = ?", s.ks),
		receiverID, status,
	).WithContext(ctx).Iter()

	var out []string
	var messageID string
	for iter.Scan(&messageID) {
		out = append(out, messageID)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read acks by status for receiver %s: %w", receiverID, err)
	}
	return out, nil
}

var _ Store = (*CassandraStore)(nil)
