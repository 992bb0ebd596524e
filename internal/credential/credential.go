// Package credential issues and verifies the signed tokens printed on tickets.
//
// A credential is an HS256 JWT over a versioned claim set. Scanners decode it
// back to the ticket id; the ticket row keeps the latest credential so a
// re-issued ticket never validates against an older token.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// Version is the claim layout this build issues and accepts
const Version = 1

var (
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrUnsupportedVersion = errors.New("unsupported credential version")
)

// Claims identify one ticket. Field names are kept short since the token
// ends up in a QR code.
type Claims struct {
	Version  int   `json:"ver"`
	TicketID int64 `json:"tid"`
	EventID  int64 `json:"eid"`
	OrderID  int64 `json:"oid"`
	TierID   int64 `json:"kid"`
	jwt.StandardClaims
}

type Issuer struct {
	key []byte
	now func() time.Time
}

func NewIssuer(signingKey string) *Issuer {
	return &Issuer{key: []byte(signingKey), now: time.Now}
}

// Issue signs a fresh credential. Each call yields a distinct token through
// the random jti, even for the same ticket.
func (i *Issuer) Issue(ticketID, eventID, orderID, tierID int64) (string, error) {
	claims := Claims{
		Version:  Version,
		TicketID: ticketID,
		EventID:  eventID,
		OrderID:  orderID,
		TierID:   tierID,
		StandardClaims: jwt.StandardClaims{
			Id:       uuid.New().String(),
			IssuedAt: i.now().Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return token, nil
}

// Parse verifies signature and version and returns the claims
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if claims.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, claims.Version)
	}
	if claims.TicketID <= 0 {
		return nil, fmt.Errorf("%w: missing ticket id", ErrInvalidCredential)
	}

	return claims, nil
}

// RenderQR encodes a credential as a PNG QR code
func RenderQR(token string, size int) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}
