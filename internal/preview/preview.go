// Package preview はリンク先ページのプレビュー情報取得のドメインロジックを提供する。
package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/hedge/internal/model"
	"golang.org/x/net/html"
)

// Preview はリンク先ページから抽出したプレビュー情報を表す。
type Preview struct {
	Title   string
	Image   string
	Extract string
}

// FetchGuard はSSRF検証のインターフェース。
// security.FetchGuardServiceを抽象化してテスタビリティを向上させる。
type FetchGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher はリンクプレビュー取得機能を提供する。
type Fetcher struct {
	guard   FetchGuard
	timeout time.Duration
	maxSize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(guard FetchGuard, timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		guard:   guard,
		timeout: timeout,
		maxSize: maxSize,
	}
}

// Fetch は指定URLのページを取得し、プレビュー情報を抽出する。
// 1. SSRF検証を実行
// 2. URLにHTTPリクエストを送信
// 3. HTMLのheadタグからog:title/og:image/og:description等を抽出
// 失敗時はエラーを返すが、呼び出し側ではプレビューなしとして扱ってよい。
func (f *Fetcher) Fetch(ctx context.Context, inputURL string) (*Preview, error) {
	if inputURL == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	if f.guard != nil {
		if err := f.guard.ValidateURL(inputURL); err != nil {
			return nil, model.NewInvalidURLError(err.Error())
		}
	}

	client := f.getHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Hedge/1.0 Link Preview")
	req.Header.Set("Accept", "text/html, application/xhtml+xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ページの取得に失敗しました: status=%d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return nil, fmt.Errorf("HTMLではないコンテンツです: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	p := f.ParseHTML(body, inputURL)
	return p, nil
}

// ParseHTML はHTMLを解析してプレビュー情報を抽出する。
// OGPメタタグを優先し、なければtitle要素をフォールバックとして使用する。
// 相対URLの画像はbaseURLを基準に絶対URLに解決される。
func (f *Fetcher) ParseHTML(htmlBody []byte, baseURL string) *Preview {
	p := &Preview{}

	baseU, err := url.Parse(baseURL)
	if err != nil {
		baseU = nil
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inTitle := false
	var fallbackTitle string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			f.finalize(p, fallbackTitle, baseU)
			return p

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "title" {
				inTitle = true
				continue
			}

			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				f.finalize(p, fallbackTitle, baseU)
				return p
			}

			if tagName != "meta" || !hasAttr {
				continue
			}

			// meta要素の属性を解析
			var property, name, content string
			for {
				key, val, more := tokenizer.TagAttr()
				k := strings.ToLower(string(key))
				v := string(val)
				switch k {
				case "property":
					property = strings.ToLower(v)
				case "name":
					name = strings.ToLower(v)
				case "content":
					content = v
				}
				if !more {
					break
				}
			}

			if content == "" {
				continue
			}

			key := property
			if key == "" {
				key = name
			}

			switch key {
			case "og:title":
				if p.Title == "" {
					p.Title = content
				}
			case "og:image":
				if p.Image == "" {
					p.Image = content
				}
			case "og:description", "description":
				if p.Extract == "" {
					p.Extract = content
				}
			}

		case html.TextToken:
			if inTitle && fallbackTitle == "" {
				fallbackTitle = strings.TrimSpace(string(tokenizer.Text()))
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				f.finalize(p, fallbackTitle, baseU)
				return p
			}
		}
	}
}

// finalize はフォールバックタイトルの適用と画像URLの絶対化を行う。
func (f *Fetcher) finalize(p *Preview, fallbackTitle string, baseU *url.URL) {
	if p.Title == "" {
		p.Title = fallbackTitle
	}
	if p.Image != "" && baseU != nil {
		if resolved := resolveURL(baseU, p.Image); resolved != "" {
			p.Image = resolved
		}
	}
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// getHTTPClient はHTTPクライアントを取得する。
// FetchGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (f *Fetcher) getHTTPClient() *http.Client {
	if f.guard != nil {
		return f.guard.NewSafeClient(f.timeout)
	}
	return &http.Client{Timeout: f.timeout}
}
