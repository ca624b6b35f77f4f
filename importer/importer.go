// Package importer 以CSV批次新增或更新商品，以SKU判斷是否為既有商品
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"storefront/metrics"
	"storefront/models"
	"storefront/slug"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEmptyFile     = errors.New("CSV檔案沒有內容")
	ErrMissingColumn = errors.New("CSV缺少必要欄位")
)

const (
	colSKU         = "sku"
	colName        = "name"
	colPrice       = "price"
	colStock       = "stock"
	colDescription = "description"
	colImageURL    = "imageurl"
	colBrand       = "brand"
	colCategories  = "categories"
	colActive      = "active"
	colFeatured    = "featured"
)

var requiredColumns = []string{colSKU, colName, colPrice}

type RowError struct {
	Row   int    `json:"row"`
	SKU   string `json:"sku,omitempty"`
	Error string `json:"error"`
}

type Result struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	DryRun  bool       `json:"dryRun"`
	Errors  []RowError `json:"errors"`
}

// row 只有CSV中出現且非空白的欄位才會覆寫既有資料
type row struct {
	line        int
	sku         string
	name        string
	price       uint
	stock       *uint
	description *string
	imageURL    *string
	brand       *string
	categories  []string
	hasCategory bool
	active      *bool
	featured    *bool
}

type Importer struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Importer {
	return &Importer{db: db, log: log.With().Str("component", "importer").Logger()}
}

// Import 解析整個檔案後於單一交易中寫入所有有效列，dryRun時只驗證
func (im *Importer) Import(ctx context.Context, r io.Reader, dryRun bool) (Result, error) {
	result := Result{DryRun: dryRun, Errors: []RowError{}}

	rows, rowErrors, err := parse(r)
	if err != nil {
		return result, err
	}
	result.Errors = rowErrors

	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skus := make([]string, 0, len(rows))
		for _, r := range rows {
			skus = append(skus, r.sku)
		}
		existing := map[string]*models.Product{}
		if len(skus) > 0 {
			var products []models.Product
			if err := tx.Unscoped().Where("sku IN ?", skus).Find(&products).Error; err != nil {
				return err
			}
			for i := range products {
				existing[products[i].SKU] = &products[i]
			}
		}

		lookup := newLookup(tx)
		claimed := map[string]int{}
		for _, r := range rows {
			product, created := existing[r.sku], false
			if product == nil {
				product = &models.Product{SKU: r.sku, Active: true}
				created = true
			}

			productSlug := models.ProductSlug(r.name, r.sku)
			if err := claimSlug(tx, claimed, productSlug, product.ID, r.line); err != nil {
				if !errors.Is(err, models.ErrSlugTaken) {
					return err
				}
				result.Errors = append(result.Errors, RowError{Row: r.line, SKU: r.sku, Error: err.Error()})
				continue
			}

			if !dryRun {
				if err := apply(lookup, product, r); err != nil {
					return fmt.Errorf("第%d列(%s)寫入失敗: %w", r.line, r.sku, err)
				}
				if err := save(tx, product, r, created, lookup); err != nil {
					return fmt.Errorf("第%d列(%s)寫入失敗: %w", r.line, r.sku, err)
				}
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return Result{DryRun: dryRun, Errors: rowErrors}, err
	}

	sort.SliceStable(result.Errors, func(i, j int) bool {
		return result.Errors[i].Row < result.Errors[j].Row
	})
	result.Skipped = len(result.Errors)
	if !dryRun {
		metrics.RecordImportRows("created", result.Created)
		metrics.RecordImportRows("updated", result.Updated)
		metrics.RecordImportRows("skipped", result.Skipped)
	}
	im.log.Info().
		Bool("dryRun", dryRun).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("CSV匯入完成")
	return result, nil
}

func parse(r io.Reader) ([]row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrEmptyFile
		}
		return nil, nil, fmt.Errorf("無法讀取CSV標題列: %w", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name != "" {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	var (
		rows      []row
		rowErrors = []RowError{}
		seen      = map[string]int{}
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrors = append(rowErrors, RowError{Row: parseErr.StartLine, Error: parseErr.Err.Error()})
				continue
			}
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}

		parsed, err := parseRow(record, columns)
		parsed.line = line
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: line, SKU: parsed.sku, Error: err.Error()})
			continue
		}
		if first, dup := seen[parsed.sku]; dup {
			rowErrors = append(rowErrors, RowError{Row: line, SKU: parsed.sku, Error: fmt.Sprintf("SKU與第%d列重複", first)})
			continue
		}
		seen[parsed.sku] = line
		rows = append(rows, parsed)
	}
	return rows, rowErrors, nil
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func parseRow(record []string, columns map[string]int) (row, error) {
	cell := func(name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return "", false
		}
		value := strings.TrimSpace(record[i])
		return value, value != ""
	}

	var r row
	r.sku, _ = cell(colSKU)
	if r.sku == "" {
		return r, errors.New("缺少sku")
	}
	if len(r.sku) > 64 {
		return r, errors.New("sku過長")
	}
	r.name, _ = cell(colName)
	if r.name == "" {
		return r, errors.New("缺少name")
	}

	price, ok := cell(colPrice)
	if !ok {
		return r, errors.New("缺少price")
	}
	p, err := strconv.ParseUint(price, 10, 0)
	if err != nil {
		return r, fmt.Errorf("price格式錯誤: %q", price)
	}
	r.price = uint(p)

	if value, ok := cell(colStock); ok {
		s, err := strconv.ParseUint(value, 10, 0)
		if err != nil {
			return r, fmt.Errorf("stock格式錯誤: %q", value)
		}
		stock := uint(s)
		r.stock = &stock
	}
	if value, ok := cell(colDescription); ok {
		r.description = &value
	}
	if value, ok := cell(colImageURL); ok {
		r.imageURL = &value
	}
	if value, ok := cell(colBrand); ok {
		r.brand = &value
	}
	if value, ok := cell(colCategories); ok {
		r.hasCategory = true
		for _, name := range strings.Split(value, ";") {
			if name = strings.TrimSpace(name); name != "" {
				r.categories = append(r.categories, name)
			}
		}
	}
	flags := []struct {
		column string
		target **bool
	}{
		{colActive, &r.active},
		{colFeatured, &r.featured},
	}
	for _, flag := range flags {
		if value, ok := cell(flag.column); ok {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return r, fmt.Errorf("%s格式錯誤: %q", flag.column, value)
			}
			*flag.target = &b
		}
	}
	return r, nil
}

// claimSlug 同一次匯入中或資料庫內已有其他商品使用相同代稱時回傳ErrSlugTaken
func claimSlug(tx *gorm.DB, claimed map[string]int, productSlug string, productID uint, line int) error {
	if first, ok := claimed[productSlug]; ok {
		return fmt.Errorf("%w: 與第%d列相同(%s)", models.ErrSlugTaken, first, productSlug)
	}
	if err := models.CheckProductSlug(tx, productSlug, productID); err != nil {
		if errors.Is(err, models.ErrSlugTaken) {
			return fmt.Errorf("%w: %s", err, productSlug)
		}
		return err
	}
	claimed[productSlug] = line
	return nil
}

func apply(lookup *lookup, product *models.Product, r row) error {
	product.Name = r.name
	product.Slug = models.ProductSlug(r.name, r.sku)
	product.Price = r.price
	if r.stock != nil {
		product.Stock = *r.stock
	}
	if r.description != nil {
		product.Description = *r.description
	}
	if r.imageURL != nil {
		product.ImageURL = *r.imageURL
	}
	if r.active != nil {
		product.Active = *r.active
	}
	if r.featured != nil {
		product.Featured = *r.featured
	}
	if r.brand != nil {
		brand, err := lookup.brand(*r.brand)
		if err != nil {
			return err
		}
		product.BrandID = &brand.ID
	}
	// 重新匯入已刪除的商品時恢復上架
	product.DeletedAt = gorm.DeletedAt{}
	return nil
}

func save(tx *gorm.DB, product *models.Product, r row, created bool, lookup *lookup) error {
	var err error
	if created {
		err = tx.Omit(clause.Associations).Create(product).Error
	} else {
		err = tx.Unscoped().Omit(clause.Associations).Save(product).Error
	}
	if err != nil {
		return err
	}
	if !r.hasCategory {
		return nil
	}
	categories := make([]models.Category, 0, len(r.categories))
	for _, name := range r.categories {
		category, err := lookup.category(name)
		if err != nil {
			return err
		}
		categories = append(categories, *category)
	}
	return tx.Model(product).Association("Categories").Replace(categories)
}

// lookup 在同一次匯入中重複使用已找到或新建的品牌與分類
type lookup struct {
	tx         *gorm.DB
	brands     map[string]*models.Brand
	categories map[string]*models.Category
}

func newLookup(tx *gorm.DB) *lookup {
	return &lookup{
		tx:         tx,
		brands:     map[string]*models.Brand{},
		categories: map[string]*models.Category{},
	}
}

// 以slug比對，大小寫與重音不同視為同一品牌
func (l *lookup) brand(name string) (*models.Brand, error) {
	key := slug.MakeOr(name, "brand")
	if brand, ok := l.brands[key]; ok {
		return brand, nil
	}
	brand := &models.Brand{}
	err := l.tx.Where(models.Brand{Slug: key}).
		Attrs(models.Brand{Name: name}).
		FirstOrCreate(brand).Error
	if err != nil {
		return nil, fmt.Errorf("品牌%q: %w", name, err)
	}
	l.brands[key] = brand
	return brand, nil
}

func (l *lookup) category(name string) (*models.Category, error) {
	key := slug.MakeOr(name, "category")
	if category, ok := l.categories[key]; ok {
		return category, nil
	}
	category := &models.Category{}
	err := l.tx.Where(models.Category{Slug: key}).
		Attrs(models.Category{Name: name}).
		FirstOrCreate(category).Error
	if err != nil {
		return nil, fmt.Errorf("分類%q: %w", name, err)
	}
	l.categories[key] = category
	return category, nil
}
