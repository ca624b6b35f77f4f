package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

type Sort string

const (
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortName      Sort = "name"
	SortStock     Sort = "stock"
)

var ErrInvalidQuery = errors.New("查詢條件錯誤")

// Query 為商品搜尋條件，零值代表不篩選
type Query struct {
	Text        string
	CategoryIDs []uint
	BrandID     uint
	MinPrice    *uint
	MaxPrice    *uint
	InStock     bool
	Featured    bool
	Sort        Sort
	Limit       int
	Offset      int
}

// ParseQuery 解析 q, categories, brand, minPrice, maxPrice, inStock, featured, sort, limit, offset
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		Text:   strings.TrimSpace(values.Get("q")),
		Sort:   SortNewest,
		Limit:  DefaultLimit,
		Offset: 0,
	}

	var err error
	if q.Limit, err = intParam(values, "limit", DefaultLimit); err != nil {
		return q, err
	}
	if q.Limit < 1 {
		return q, fmt.Errorf("%w: limit必須大於0", ErrInvalidQuery)
	}
	//限制最高查詢數量為50
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset, err = intParam(values, "offset", 0); err != nil {
		return q, err
	}
	if q.Offset < 0 {
		return q, fmt.Errorf("%w: offset不得為負數", ErrInvalidQuery)
	}

	if raw := values.Get("categories"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return q, fmt.Errorf("%w: categories輸入錯誤 %q", ErrInvalidQuery, part)
			}
			q.CategoryIDs = append(q.CategoryIDs, uint(id))
		}
	}

	if raw := values.Get("brand"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("%w: brand輸入錯誤", ErrInvalidQuery)
		}
		q.BrandID = uint(id)
	}

	if q.MinPrice, err = uintParam(values, "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = uintParam(values, "maxPrice"); err != nil {
		return q, err
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return q, fmt.Errorf("%w: minPrice大於maxPrice", ErrInvalidQuery)
	}

	if q.InStock, err = boolParam(values, "inStock"); err != nil {
		return q, err
	}
	if q.Featured, err = boolParam(values, "featured"); err != nil {
		return q, err
	}

	if raw := values.Get("sort"); raw != "" {
		switch s := Sort(raw); s {
		case SortNewest, SortPriceAsc, SortPriceDesc, SortName, SortStock:
			q.Sort = s
		default:
			return q, fmt.Errorf("%w: 不支援的排序 %q", ErrInvalidQuery, raw)
		}
	}

	return q, nil
}

func intParam(values url.Values, key string, def int) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s輸入錯誤", ErrInvalidQuery, key)
	}
	return v, nil
}

func uintParam(values url.Values, key string) (*uint, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s輸入錯誤", ErrInvalidQuery, key)
	}
	u := uint(v)
	return &u, nil
}

func boolParam(values url.Values, key string) (bool, error) {
	raw := values.Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s輸入錯誤", ErrInvalidQuery, key)
	}
	return v, nil
}
