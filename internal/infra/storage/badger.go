package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
)

var (
	prefixExit  = []byte("exit/")
	prefixRoles = []byte("roles/")
	prefixChat  = []byte("chat/")
	keyChatSeq  = []byte("seq/chat")
)

// BadgerStore es el backend embebido: mismo contrato que StateRepo + ChatRepo
// sin necesidad de Postgres. dir vacío = en memoria (tests).
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("badger dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	seq, err := db.GetSequence(keyChatSeq, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		log.Printf("[store] badger release sequence: %v", err)
	}
	return s.db.Close()
}

func memberKey(prefix []byte, memberID string) []byte {
	return append(append([]byte(nil), prefix...), memberID...)
}

func (s *BadgerStore) LoadAll(_ context.Context) (domain.State, error) {
	st := domain.NewState()
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefixExit); it.ValidForPrefix(prefixExit); it.Next() {
			item := it.Item()
			memberID := string(bytes.TrimPrefix(item.Key(), prefixExit))
			err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("exit %s: valor corrupto", memberID)
				}
				nanos := int64(binary.BigEndian.Uint64(v))
				st.Exits[memberID] = domain.ExitRecord{MemberID: memberID, ExitAt: time.Unix(0, nanos).UTC()}
				return nil
			})
			if err != nil {
				return err
			}
		}

		for it.Seek(prefixRoles); it.ValidForPrefix(prefixRoles); it.Next() {
			item := it.Item()
			memberID := string(bytes.TrimPrefix(item.Key(), prefixRoles))
			var ids []string
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &ids) }); err != nil {
				return fmt.Errorf("roles %s: %w", memberID, err)
			}
			st.RemovedRoles[memberID] = domain.RemovedRolesRecord{MemberID: memberID, RoleIDs: ids}
		}
		return nil
	})
	return st, err
}

// SaveAll reescribe los prefijos exit/ y roles/ en una sola transacción.
func (s *BadgerStore) SaveAll(_ context.Context, st domain.State) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, p := range [][]byte{prefixExit, prefixRoles} {
			if err := deletePrefix(txn, p); err != nil {
				return err
			}
		}
		for id, rec := range st.Exits {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], uint64(rec.ExitAt.UnixNano()))
			if err := txn.Set(memberKey(prefixExit, id), v[:]); err != nil {
				return err
			}
		}
		for id, rec := range st.RemovedRoles {
			v, err := json.Marshal(rec.RoleIDs)
			if err != nil {
				return err
			}
			if err := txn.Set(memberKey(prefixRoles, id), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Release borra los registros persistidos de un miembro (statectl).
func (s *BadgerStore) Release(_ context.Context, memberID string) (bool, error) {
	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, p := range [][]byte{prefixExit, prefixRoles} {
			k := memberKey(p, memberID)
			if _, err := txn.Get(k); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			found = true
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return found, err
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ---- historial de chat: chat/<member>/<seq big-endian> ----

type chatRecord struct {
	Role    domain.ChatRole `json:"role"`
	Content string          `json:"content"`
	At      time.Time       `json:"at"`
}

func chatPrefix(memberID string) []byte {
	return append(memberKey(prefixChat, memberID), '/')
}

func (s *BadgerStore) Append(_ context.Context, t domain.ChatTurn) error {
	n, err := s.seq.Next()
	if err != nil {
		return err
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	v, err := json.Marshal(chatRecord{Role: t.Role, Content: t.Content, At: at})
	if err != nil {
		return err
	}
	key := chatPrefix(t.MemberID)
	key = binary.BigEndian.AppendUint64(key, n)
	return s.db.Update(func(txn *badger.Txn) error { return txn.Set(key, v) })
}

// Recent devuelve los últimos limit turnos en orden cronológico.
func (s *BadgerStore) Recent(_ context.Context, memberID string, limit int) ([]domain.ChatTurn, error) {
	prefix := chatPrefix(memberID)
	var out []domain.ChatTurn
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var rec chatRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			out = append(out, domain.ChatTurn{MemberID: memberID, Role: rec.Role, Content: rec.Content, At: rec.At})
		}
		return nil
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}

func (s *BadgerStore) Trim(_ context.Context, memberID string, keep int) error {
	prefix := chatPrefix(memberID)
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var drop [][]byte
		seen := 0
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			seen++
			if seen > keep {
				drop = append(drop, it.Item().KeyCopy(nil))
			}
		}
		it.Close()
		for _, k := range drop {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Clear(_ context.Context, memberID string) (bool, error) {
	prefix := chatPrefix(memberID)
	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		it.Close()
		if !found {
			return nil
		}
		return deletePrefix(txn, prefix)
	})
	return found, err
}

// badgerLogger manda los logs de badger al log estándar con tag.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN "+f, v...) }
func (badgerLogger) Infof(f string, v ...interface{})    {}
func (badgerLogger) Debugf(f string, v ...interface{})   {}
