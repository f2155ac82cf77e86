// Package token はベアラートークンの検証とsubjectクレームの抽出を提供する。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taskman/internal/model"
)

// 検証失敗の種別。ログおよびテストで区別するための内部向けエラーであり、
// HTTPレスポンスにはどれもINVALID_TOKEN（未提示のみAUTH_REQUIRED）として返す。
var (
	// ErrMissingCredential はトークンが提示されていないことを示す。
	ErrMissingCredential = errors.New("token: credential not presented")
	// ErrMalformedToken はトークンを解析できないことを示す。
	ErrMalformedToken = errors.New("token: malformed token")
	// ErrBadSignature は署名が共有シークレットと一致しないことを示す。
	ErrBadSignature = errors.New("token: signature mismatch")
	// ErrExpired はトークンが有効期間外であることを示す。
	ErrExpired = errors.New("token: outside validity window")
	// ErrMissingSubject は利用可能なsubjectクレームが存在しないことを示す。
	ErrMissingSubject = errors.New("token: no usable subject claim")
)

// VerifierConfig はトークン検証の設定。
type VerifierConfig struct {
	Secret string        // IdPと共有する署名シークレット
	Leeway time.Duration // exp/iat検証時に許容する時刻ずれ
}

// Verifier はHS256署名付きトークンを検証し、AuthContextを抽出する。
// 状態を持たず、(トークン, 現在時刻, シークレット)の純関数として振る舞う。
type Verifier struct {
	secret []byte
	leeway time.Duration
}

// NewVerifier はVerifierを生成する。
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.Secret),
		leeway: cfg.Leeway,
	}
}

// bearerClaims は検証対象トークンのペイロード。
// subjectはsubクレームを優先し、IdPの流儀によってはuser_idクレームを代替として受け付ける。
type bearerClaims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verify はトークンの構造・署名・有効期間を検証し、AuthContextを返す。
// expが過去、またはiatが未来のトークンは有効期間外として拒否する。
// 失敗はすべてリクエストに対して終端的であり、部分的な成功はない。
func (v *Verifier) Verify(raw string) (*model.AuthContext, error) {
	if raw == "" {
		return nil, ErrMissingCredential
	}

	parsed, err := jwt.ParseWithClaims(raw, &bearerClaims{},
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired),
			errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
			errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformedToken
		}
	}

	claims, ok := parsed.Claims.(*bearerClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.UserID
	}
	if subject == "" {
		return nil, ErrMissingSubject
	}

	return &model.AuthContext{
		SubjectID: subject,
		Email:     claims.Email,
	}, nil
}
