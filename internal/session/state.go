package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minio/crc64nvme"

	"github.com/wolfeidau/eddits-console/internal/models"
)

// State is a read-only snapshot of the session.
type State struct {
	User            *models.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

func (s State) clone() State {
	if s.User != nil {
		u := s.User.Apply(models.UserPatch{})
		s.User = &u
	}
	return s
}

// snapshot is the persisted subset of State. Loading and error flags are
// runtime only.
type snapshot struct {
	User            *models.User `json:"user"`
	Token           string       `json:"token"`
	RefreshToken    string       `json:"refreshToken"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

const snapshotVersion = 1

// envelope wraps the snapshot with a checksum so a truncated or hand-edited
// blob is detected instead of half-restored.
type envelope struct {
	Version  int             `json:"version"`
	State    json.RawMessage `json:"state"`
	Checksum uint64          `json:"checksum"`
}

var errChecksum = errors.New("session snapshot checksum mismatch")

func (s State) snapshot() snapshot {
	return snapshot{
		User:            s.User,
		Token:           s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

func (s snapshot) state() State {
	return State{
		User:            s.User,
		AccessToken:     s.Token,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

func encodeSnapshot(s snapshot) (string, error) {
	state, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	data, err := json.Marshal(envelope{
		Version:  snapshotVersion,
		State:    state,
		Checksum: computeCRC64(state),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	return string(data), nil
}

func decodeSnapshot(raw string) (snapshot, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return snapshot{}, fmt.Errorf("failed to decode session: %w", err)
	}

	if env.Version != snapshotVersion {
		return snapshot{}, fmt.Errorf("unsupported session version %d", env.Version)
	}

	if computeCRC64(env.State) != env.Checksum {
		return snapshot{}, errChecksum
	}

	var s snapshot
	if err := json.Unmarshal(env.State, &s); err != nil {
		return snapshot{}, fmt.Errorf("failed to decode session: %w", err)
	}

	return s, nil
}

func computeCRC64(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
