package coinbase

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authenticator signs Advanced Trade requests with an ES256 JWT derived from
// a CDP API key (name format: organizations/{org_id}/apiKeys/{key_id}).
type authenticator struct {
	apiKeyName string
	privateKey *ecdsa.PrivateKey
}

func newAuthenticator(apiKeyName, privateKeyPEM string) (*authenticator, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		key, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("parsing EC private key: %w", err)
		}
		var ok bool
		privateKey, ok = key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not an EC key")
		}
	}

	return &authenticator{
		apiKeyName: apiKeyName,
		privateKey: privateKey,
	}, nil
}

func (a *authenticator) addAuthHeaders(req *http.Request, method, path string) error {
	token, err := a.generateJWT(method, req.Host, path)
	if err != nil {
		return fmt.Errorf("generating JWT: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *authenticator) generateJWT(method, host, path string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   a.apiKeyName,
		"iss":   "coinbase-cloud",
		"nbf":   now.Unix(),
		"exp":   now.Add(2 * time.Minute).Unix(),
		"uri":   method + " " + host + path,
		"nonce": nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.apiKeyName
	token.Header["nonce"] = nonce

	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
