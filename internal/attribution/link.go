package attribution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/repository"
)

// Issuer builds signed referral URLs:
// <frontendBase>/signup?pid=<id>&ts=<unixMillis>&sig=<hex>.
type Issuer struct {
	partners     repository.PartnersRepository
	vault        *crypto.Vault
	frontendBase string
	now          func() time.Time
}

func NewIssuer(partners repository.PartnersRepository, vault *crypto.Vault, frontendBase string, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{partners: partners, vault: vault, frontendBase: frontendBase, now: now}
}

// IssueLink signs "now" for the partner. Partner configuration problems
// (missing partner, missing secret, undecryptable secret) surface to the
// caller; this is the one partner-facing error path in the subsystem.
func (i *Issuer) IssueLink(ctx context.Context, partnerID int64) (string, error) {
	partner, err := i.partners.GetByID(ctx, partnerID)
	if err != nil {
		return "", fmt.Errorf("load partner: %w", err)
	}
	if partner == nil {
		return "", ErrPartnerNotFound
	}
	if !partner.HasSecret() {
		return "", ErrNoSecret
	}

	secret, err := i.vault.Decrypt(*partner.SecretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt partner secret: %w", err)
	}

	ts := i.now().UnixMilli()
	sig := crypto.Sign(partner.ID, ts, secret)

	return fmt.Sprintf("%s/signup?pid=%d&ts=%d&sig=%s",
		strings.TrimRight(i.frontendBase, "/"), partner.ID, ts, sig), nil
}
