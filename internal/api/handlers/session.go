package handlers

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/service"
)

const handshakeSessionKey = "x_handshake"

// fiberSession keeps the handshake as a JSON string so the session storage
// never has to gob-encode our types.
type fiberSession struct {
	store *session.Store
	c     *fiber.Ctx
}

var _ service.HandshakeSession = (*fiberSession)(nil)

func newFiberSession(store *session.Store, c *fiber.Ctx) *fiberSession {
	return &fiberSession{store: store, c: c}
}

func (s *fiberSession) Handshake() *models.Handshake {
	sess, err := s.store.Get(s.c)
	if err != nil {
		slog.Info(err.Error())
		return nil
	}

	raw, ok := sess.Get(handshakeSessionKey).(string)
	if !ok || raw == "" {
		return nil
	}

	var h models.Handshake
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		slog.Info(err.Error())
		return nil
	}
	return &h
}

func (s *fiberSession) SetHandshake(h *models.Handshake) error {
	sess, err := s.store.Get(s.c)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}

	sess.Set(handshakeSessionKey, string(raw))
	return sess.Save()
}

func (s *fiberSession) ClearHandshake() error {
	sess, err := s.store.Get(s.c)
	if err != nil {
		return err
	}

	sess.Delete(handshakeSessionKey)
	return sess.Save()
}
