package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenRecord is the persisted OAuth credential set. ExpiryDate is in epoch milliseconds.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func (r TokenRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiryDate)
}

// Merge returns next with the refresh token of r carried over when next has none.
// Google omits refresh_token from refresh responses; dropping it would force a new consent.
func (r TokenRecord) Merge(next TokenRecord) TokenRecord {
	if next.RefreshToken == "" {
		next.RefreshToken = r.RefreshToken
	}

	return next
}

func (r TokenRecord) oauth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}

	if r.ExpiryDate > 0 {
		tok.Expiry = r.Expiry()
	}

	return tok
}

func recordFromOAuth2(tok *oauth2.Token) TokenRecord {
	rec := TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}

	if !tok.Expiry.IsZero() {
		rec.ExpiryDate = tok.Expiry.UnixMilli()
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		rec.Scope = scope
	}

	if idToken, ok := tok.Extra("id_token").(string); ok {
		rec.IDToken = idToken
	}

	return rec
}
