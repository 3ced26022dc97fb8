// Package richtext はリッチテキストドキュメントの検証と正規化を提供する。
//
// ドキュメントはノードツリーをシリアライズしたJSONで、ストアには不透明な
// テキストとして保存される。保存前にこのパッケージで一度だけ正規化し、
// 以降の層（リポジトリ・ストア）は内容を解釈しない。
// テキストリーフはbluemondayの許可リストでサニタイズされ、
// scriptタグやon*イベント属性などの危険なマークアップは除去される。
// 同一入力に対して常に同一出力を返す（冪等）。
package richtext

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/hedge/internal/model"
)

const (
	// maxDocumentBytes はシリアライズ済みドキュメントの最大サイズ。
	maxDocumentBytes = 65536
	// maxDepth はノードツリーの最大深さ。
	maxDepth = 16
	// maxNodes はドキュメントあたりの最大ノード数。
	maxNodes = 2000
)

// Node はドキュメントツリーの1ノードを表す。
type Node struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// Document はリッチテキストドキュメントのルートを表す。
type Document struct {
	Type     string `json:"type"`
	Children []Node `json:"children"`
}

// allowedNodeTypes は許可されるノード種別のセット。
var allowedNodeTypes = map[string]bool{
	"paragraph":  true,
	"heading":    true,
	"text":       true,
	"strong":     true,
	"em":         true,
	"code":       true,
	"code_block": true,
	"quote":      true,
	"list":       true,
	"list_item":  true,
	"link":       true,
	"image":      true,
	"break":      true,
}

// Normalizer はドキュメントの検証・正規化を行う。
type Normalizer struct {
	textPolicy *bluemonday.Policy
}

// NewNormalizer はNormalizerを生成する。
// テキストリーフにはタグを一切許可しないStrictPolicyを適用する。
// 書式はノード種別（strong/em/code等）で表現されるため、
// リーフ内のインラインHTMLはすべて除去される。
func NewNormalizer() *Normalizer {
	return &Normalizer{
		textPolicy: bluemonday.StrictPolicy(),
	}
}

// Normalize はシリアライズ済みドキュメントを検証し、正規化したJSONを返す。
// 検証に失敗した場合は理由を含むmodel.APIError（INVALID_DOCUMENT）を返す。
func (n *Normalizer) Normalize(raw string) (string, error) {
	if raw == "" {
		return "", model.NewInvalidDocumentError("ドキュメントが空です")
	}
	if len(raw) > maxDocumentBytes {
		return "", model.NewInvalidDocumentError(
			fmt.Sprintf("ドキュメントが大きすぎます（%dバイト、上限%d）", len(raw), maxDocumentBytes))
	}

	var doc Document
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return "", model.NewInvalidDocumentError(fmt.Sprintf("JSONとして解析できません: %v", err))
	}

	if doc.Type != "doc" {
		return "", model.NewInvalidDocumentError(fmt.Sprintf("ルートノードの種別が不正です: %q", doc.Type))
	}

	count := 0
	for i := range doc.Children {
		if err := n.normalizeNode(&doc.Children[i], 1, &count); err != nil {
			return "", model.NewInvalidDocumentError(err.Error())
		}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("正規化結果のシリアライズに失敗: %v", err)
	}
	return string(normalized), nil
}

// normalizeNode は1ノードを再帰的に検証・正規化する。
func (n *Normalizer) normalizeNode(node *Node, depth int, count *int) error {
	*count++
	if *count > maxNodes {
		return fmt.Errorf("ノード数が上限（%d）を超えています", maxNodes)
	}
	if depth > maxDepth {
		return fmt.Errorf("ネストが深すぎます（上限%d）", maxDepth)
	}

	if !allowedNodeTypes[node.Type] {
		return fmt.Errorf("許可されていないノード種別です: %q", node.Type)
	}

	// テキストリーフのインラインHTMLを除去する
	if node.Text != "" {
		node.Text = n.textPolicy.Sanitize(node.Text)
	}

	// link/imageのURL属性はhttp(s)のみ許可する
	switch node.Type {
	case "link":
		if err := validateURLAttr(node.Attrs, "href"); err != nil {
			return err
		}
	case "image":
		if err := validateURLAttr(node.Attrs, "src"); err != nil {
			return err
		}
	}

	for i := range node.Children {
		if err := n.normalizeNode(&node.Children[i], depth+1, count); err != nil {
			return err
		}
	}
	return nil
}

// validateURLAttr はノード属性のURLがhttp(s)スキームであることを検証する。
func validateURLAttr(attrs map[string]string, key string) error {
	raw, ok := attrs[key]
	if !ok || raw == "" {
		return fmt.Errorf("%s属性が必要です", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s属性のURLが不正です: %v", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s属性のスキームが不正です: %q", key, u.Scheme)
	}
	return nil
}
