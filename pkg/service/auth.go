package service

import (
	"context"

	"bankfair_client/models"
	"bankfair_client/pkg/session"
)

type AuthService struct {
	session Session
	meta    Meta
}

func NewAuthService(s Session, meta Meta) *AuthService {
	return &AuthService{session: s, meta: meta}
}

func (s *AuthService) Login(ctx context.Context) (models.User, error) {
	id, err := s.session.Login(ctx)
	if err != nil {
		return models.User{}, err
	}
	return s.user(id), nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.session.Logout(ctx)
}

func (s *AuthService) Me() models.User {
	return s.user(s.session.Current())
}

func (s *AuthService) user(id session.Identity) models.User {
	u := models.User{
		LoggedIn:     id.LoggedIn,
		NetworkID:    id.NetworkID,
		AppNetworkID: s.session.AppNetwork(),
		WrongNetwork: !id.OnNetwork(s.session.AppNetwork()),
	}
	if id.LoggedIn {
		u.WalletAddress = id.Address.Hex()
		u.IsManager = id.Address == s.meta.Manager
	}
	return u
}
