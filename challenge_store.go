package authkit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teamdeck/authkit/storage"
)

const challengeRecordVersion1 = 1

var (
	errChallengeNotFound = errors.New("two-factor challenge not found")
	errChallengeExpired  = errors.New("two-factor challenge expired")
	errChallengeExceeded = errors.New("two-factor challenge attempts exceeded")
	errChallengeBackend  = errors.New("two-factor challenge backend unavailable")
)

// twoFactorChallenge is the pending state between a verified password and a
// confirmed second factor. Keyed by user: a new login replaces any earlier
// pending challenge for the same account.
type twoFactorChallenge struct {
	MethodID  string
	Type      storage.MethodType
	ExpiresAt int64
	Attempts  uint16
}

type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client, prefix string) *challengeStore {
	if prefix == "" {
		prefix = "a2f"
	}
	return &challengeStore{redis: redisClient, prefix: prefix}
}

func (s *challengeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *challengeStore) Save(ctx context.Context, userID string, record *twoFactorChallenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}

func (s *challengeStore) Get(ctx context.Context, userID string) (*twoFactorChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(userID)).Result()
		return nil, errChallengeExpired
	}
	return record, nil
}

func (s *challengeStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the challenge's attempt counter under WATCH so
// concurrent wrong codes cannot undercount. Returns true when the budget is
// exhausted, in which case the challenge is gone.
func (s *challengeStore) RecordFailure(ctx context.Context, userID string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(userID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			encoded, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return exceeded, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return false, errChallengeNotFound
		case errors.Is(err, errChallengeExpired):
			return false, err
		default:
			return false, fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
	}

	return false, errChallengeBackend
}

func encodeChallenge(record *twoFactorChallenge) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil challenge record")
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	if err := writeChallengeString(&buf, record.MethodID); err != nil {
		return nil, err
	}
	if err := writeChallengeString(&buf, string(record.Type)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*twoFactorChallenge, error) {
	buf := bytes.NewReader(data)

	version, err := buf.ReadByte()
	if err != nil {
		return nil, errors.New("empty challenge record")
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("unsupported challenge record version")
	}

	methodID, err := readChallengeString(buf)
	if err != nil {
		return nil, err
	}
	methodType, err := readChallengeString(buf)
	if err != nil {
		return nil, err
	}

	record := &twoFactorChallenge{
		MethodID: methodID,
		Type:     storage.MethodType(methodType),
	}
	if err := binary.Read(buf, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, errors.New("truncated challenge record")
	}
	if err := binary.Read(buf, binary.BigEndian, &record.Attempts); err != nil {
		return nil, errors.New("truncated challenge record")
	}
	return record, nil
}

func writeChallengeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xffff {
		return errors.New("challenge field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readChallengeString(buf *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
		return "", errors.New("truncated challenge record")
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(buf, out); err != nil {
		return "", errors.New("truncated challenge record")
	}
	return string(out), nil
}
