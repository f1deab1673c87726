package credential

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/fjod/go_shop/internal/domain"
)

// ProfileVerifier turns a provider ID token into a trusted profile.
type ProfileVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (domain.Profile, error)
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type FirebaseVerifier struct {
	client idTokenVerifier
}

func NewFirebaseVerifier(ctx context.Context, projectID string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyIDToken checks the token with Firebase. The email claim becomes the
// profile id when present, otherwise the Firebase UID is used.
func (f *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (domain.Profile, error) {
	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: invalid id token: %v", domain.ErrUnauthorized, err)
	}

	profile := domain.Profile{ID: token.UID}
	if email, ok := token.Claims["email"].(string); ok && email != "" {
		profile.ID = email
	}
	profile.Name, _ = token.Claims["name"].(string)
	profile.Image, _ = token.Claims["picture"].(string)
	return profile, nil
}
