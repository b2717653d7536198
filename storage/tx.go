package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
)

// Tx is a read-modify-write session over several keys. It is only valid
// inside the Update callback that produced it.
type Tx struct {
	tx      *sqlx.Tx
	store   *Store
	touched []string
}

// Load behaves like Store.Load but reads and repairs inside the
// transaction. Repairs are committed together with the caller's writes.
func (t *Tx) Load(key string, dst any) bool {
	log := t.store.log.With().Str("key", key).Logger()
	if err := checkTarget(dst); err != nil {
		log.Error().Err(err).Msg("load rejected")
		return false
	}

	primary, hasPrimary, err := t.raw(key)
	if err != nil {
		log.Error().Err(err).Msg("read failed")
		return false
	}
	if hasPrimary {
		err := decode(primary, dst)
		if err == nil {
			return true
		}
		log.Warn().Err(err).Msg("primary copy unreadable")
	}

	backup, hasBackup, err := t.raw(BackupKey(key))
	if err != nil {
		log.Error().Err(err).Msg("backup read failed")
		return false
	}
	if hasBackup {
		err := decode(backup, dst)
		if err == nil {
			if err := t.put(key, backup); err != nil {
				log.Error().Err(err).Msg("restore from backup failed")
				return true
			}
			t.touch(key)
			t.store.metrics.recoveries.WithLabelValues(recoveryBackup).Inc()
			log.Warn().Msg("primary copy restored from backup")
			return true
		}
		log.Warn().Err(err).Msg("backup copy unreadable")
	}

	if hasPrimary || hasBackup {
		if err := t.del(key, BackupKey(key)); err != nil {
			log.Error().Err(err).Msg("erase corrupt entry failed")
			return false
		}
		t.touch(key)
		t.store.metrics.recoveries.WithLabelValues(recoveryReset).Inc()
		log.Warn().Msg("corrupt entry erased")
	}
	return false
}

// Set encodes value under key and its backup key.
func (t *Tx) Set(key string, value any) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.put(key, data); err != nil {
		return err
	}
	if err := t.put(BackupKey(key), data); err != nil {
		return err
	}
	t.touch(key)
	return nil
}

// Remove deletes key and its backup key.
func (t *Tx) Remove(key string) error {
	if err := t.del(key, BackupKey(key)); err != nil {
		return err
	}
	t.touch(key)
	return nil
}

// Clear deletes every key, backups included.
func (t *Tx) Clear() error {
	if _, err := t.tx.Exec(`DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	t.touch(AllKeys)
	return nil
}

func (t *Tx) touch(key string) {
	if !slices.Contains(t.touched, key) {
		t.touched = append(t.touched, key)
	}
}

func (t *Tx) raw(key string) ([]byte, bool, error) {
	var v []byte
	err := t.tx.Get(&v, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", key, err)
	}
	return v, true, nil
}

func (t *Tx) put(key string, data []byte) error {
	_, err := t.tx.Exec(`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (t *Tx) del(keys ...string) error {
	query, args, err := sqlx.In(`DELETE FROM kv WHERE key IN (?)`, keys)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(query, args...); err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}
