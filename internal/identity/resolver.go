// Package identity はゲスト入札者のアイデンティティ正規化を提供する。
//
// 入札者は認証されないため、入札フォームで申告されたメールアドレスを
// 正規化したものが入札者数の重複排除キーとなる。表示名はUI側でそのまま
// 描画される可能性があるため、bluemondayの厳格ポリシーでHTMLを除去する。
package identity

import (
	"net/mail"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/bidman/internal/model"
)

// maxDisplayNameLength は表示名として保存する最大文字数（rune単位）。
const maxDisplayNameLength = 50

// Resolver はゲスト入札者のアイデンティティを正規化する。
// 状態を持たず、複数goroutineから同時に利用できる。
type Resolver struct {
	namePolicy *bluemonday.Policy
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver() *Resolver {
	// StrictPolicyは全タグを除去しテキストのみを残す
	return &Resolver{
		namePolicy: bluemonday.StrictPolicy(),
	}
}

// Resolve はメールアドレスと表示名から正規化済みアイデンティティを生成する。
// メールアドレスはRFC 5322としてパースし、小文字化したアドレス部を
// 重複排除キーとして使用する。表示名はHTML除去・空白正規化・長さ制限を行う。
// どちらかが空または不正な場合はバリデーションエラーを返す。
func (r *Resolver) Resolve(email, name string) (*model.BidderIdentity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewInvalidEmailError("メールアドレスが空です")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, model.NewInvalidEmailError(email)
	}

	normalized := strings.ToLower(addr.Address)

	displayName := r.sanitizeDisplayName(name)
	if displayName == "" {
		return nil, model.NewInvalidNameError("表示名が空です")
	}

	return &model.BidderIdentity{
		NormalizedEmail: normalized,
		DisplayName:     displayName,
	}, nil
}

// sanitizeDisplayName は表示名からHTMLを除去し、連続空白を1つにまとめ、
// 最大長に切り詰める。
func (r *Resolver) sanitizeDisplayName(name string) string {
	name = r.namePolicy.Sanitize(name)
	name = strings.Join(strings.Fields(name), " ")

	runes := []rune(name)
	if len(runes) > maxDisplayNameLength {
		return string(runes[:maxDisplayNameLength])
	}
	return name
}
