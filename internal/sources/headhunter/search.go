package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"go.uber.org/zap"
)

const (
	SearchPath = "/vacancies"
)

type SearchParams struct {
	Text string `hhparam:"text"`
	// hhparam is custom tag for reflect. Please see below.
	Areas       []int    `hhparam:"area"`
	OrderBy     string   `hhparam:"order_by"`
	SearchField string   `hhparam:"search_field"`
	Schedules   []string `hhparam:"schedule"`
	PerPage     string   `hhparam:"per_page"`
	Period      uint     `hhparam:"period"`
}

// Search runs a vacancy search and reads at most pageLimit pages.
func (c *Client) Search(ctx context.Context, params *SearchParams, pageLimit int) (*Vacancies, error) {
	// Set per_page max as possible. It should be faster.
	if params.PerPage == "" {
		params.PerPage = perPage
	}

	q := buildParams(params)
	apiURLSearch := fmt.Sprintf("%s%s", c.APIURL, SearchPath)

	items, err := c.GetItems(ctx, apiURLSearch, q, pageLimit)
	if err != nil {
		return nil, err
	}

	vacancies := &Vacancies{Items: make([]*Vacancy, 0, len(items))}
	for idx, item := range items {
		vacancy, err := decodeVacancy(item)
		if err != nil {
			c.logger.Debug("dropping undecodable vacancy", zap.Int("index", idx), zap.Error(err))
			vacancies.Skipped++
			continue
		}
		vacancies.Items = append(vacancies.Items, vacancy)
	}

	return vacancies, nil
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	fields := reflect.VisibleFields(reflect.TypeOf(*params))
	for _, field := range fields {
		// Our custom tag is using here.
		key := field.Tag.Get("hhparam")
		if key == "" {
			continue
		}
		value := reflect.ValueOf(params).Elem().Field(field.Index[0]).Interface()
		switch v := value.(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			if s != "" && s != "0" {
				q.Set(key, s)
			}
		}
	}

	return q
}
