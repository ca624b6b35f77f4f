// Package sitemap 產生sitemaps.org 0.9格式的網站地圖
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"storefront/models"

	"github.com/google/renameio/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	CacheKey  = "sitemap.xml"
	CacheTTL  = time.Hour
	Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

	dateLayout = "2006-01-02"
)

type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

type Generator struct {
	db      *gorm.DB
	rdb     *redis.Client
	baseURL string
	log     zerolog.Logger
}

func NewGenerator(db *gorm.DB, rdb *redis.Client, baseURL string, log zerolog.Logger) *Generator {
	return &Generator{
		db:      db,
		rdb:     rdb,
		baseURL: baseURL,
		log:     log.With().Str("component", "sitemap").Logger(),
	}
}

func lastMod(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// Build 同時讀取商品、分類與專題並組成urlset
func (g *Generator) Build(ctx context.Context) (*URLSet, error) {
	var (
		products   []models.Product
		categories []models.Category
		projects   []models.Project
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.db.WithContext(ctx).
			Select("id", "slug", "updated_at").
			Where("active = ?", true).
			Order("id").
			Find(&products).Error
	})
	eg.Go(func() error {
		return g.db.WithContext(ctx).Select("id", "slug", "updated_at").Order("id").Find(&categories).Error
	})
	eg.Go(func() error {
		return g.db.WithContext(ctx).
			Select("id", "slug", "updated_at").
			Where("published = ?", true).
			Order("id").
			Find(&projects).Error
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("讀取網站地圖資料失敗: %w", err)
	}

	set := &URLSet{Xmlns: Namespace}
	set.URLs = append(set.URLs,
		URL{Loc: g.baseURL + "/", ChangeFreq: "daily", Priority: "1.0"},
		URL{Loc: g.baseURL + "/products", ChangeFreq: "daily", Priority: "0.8"},
		URL{Loc: g.baseURL + "/projects", ChangeFreq: "weekly", Priority: "0.6"},
	)
	for _, p := range products {
		set.URLs = append(set.URLs, URL{Loc: g.loc("products", p.Slug), LastMod: lastMod(p.UpdatedAt), Priority: "0.7"})
	}
	for _, c := range categories {
		set.URLs = append(set.URLs, URL{Loc: g.loc("categories", c.Slug), LastMod: lastMod(c.UpdatedAt), Priority: "0.5"})
	}
	for _, p := range projects {
		set.URLs = append(set.URLs, URL{Loc: g.loc("projects", p.Slug), LastMod: lastMod(p.UpdatedAt), Priority: "0.5"})
	}
	return set, nil
}

// loc 代稱可能含中文，需轉為百分比編碼
func (g *Generator) loc(section, slug string) string {
	return g.baseURL + "/" + section + "/" + url.PathEscape(slug)
}

func Encode(w io.Writer, set *URLSet) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// XML 優先回傳Redis中的快取，未命中時重新產生
func (g *Generator) XML(ctx context.Context) ([]byte, error) {
	cached, err := g.rdb.Get(ctx, CacheKey).Bytes()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		g.log.Warn().Err(err).Msg("無法從Redis讀取網站地圖，重新產生")
	}

	set, err := g.Build(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, set); err != nil {
		return nil, err
	}
	if err := g.rdb.Set(ctx, CacheKey, buf.Bytes(), CacheTTL).Err(); err != nil {
		g.log.Warn().Err(err).Msg("無法將網站地圖存入Redis")
	}
	return buf.Bytes(), nil
}

func (g *Generator) Invalidate(ctx context.Context) {
	if err := g.rdb.Del(ctx, CacheKey).Err(); err != nil {
		g.log.Warn().Err(err).Msg("無法清除網站地圖快取")
	}
}

// WriteFile 重新產生網站地圖並以原子方式寫入檔案，回傳URL數量
func (g *Generator) WriteFile(ctx context.Context, path string) (int, error) {
	set, err := g.Build(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("建立網站地圖目錄失敗: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("建立網站地圖暫存檔失敗: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			g.log.Debug().Err(err).Msg("清除網站地圖暫存檔")
		}
	}()

	if err := Encode(pendingFile, set); err != nil {
		return 0, fmt.Errorf("寫入網站地圖失敗: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("取代網站地圖檔案失敗: %w", err)
	}

	g.Invalidate(ctx)
	g.log.Info().Str("path", path).Int("urls", len(set.URLs)).Msg("網站地圖已寫入")
	return len(set.URLs), nil
}

func RobotsTxt(baseURL string) string {
	return "User-agent: *\n" +
		"Disallow: /api/v1/user/\n" +
		"Disallow: /api/v1/admin/\n" +
		"Sitemap: " + baseURL + "/sitemap.xml\n"
}
