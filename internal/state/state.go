package state

import (
	"github.com/Esaban17/impostor-app/internal/config"
	"github.com/Esaban17/impostor-app/internal/session"
)

type AppState struct {
	Cfg  *config.AppConfig
	Sess *session.Session
}

func NewAppState(
	cfg *config.AppConfig,
	sess *session.Session,
) *AppState {
	return &AppState{
		Cfg:  cfg,
		Sess: sess,
	}
}
