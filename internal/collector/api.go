package collector

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"route-pipeline/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// APIParams configures the REST collector.
type APIParams struct {
	BaseURL        string                    `json:"base_url" validate:"required,url"`
	APIKey         string                    `json:"api_key"`
	APISecret      string                    `json:"api_secret"`
	AuthType       string                    `json:"auth_type" validate:"omitempty,oneof=api_key bearer basic none"`
	Headers        map[string]string         `json:"headers"`
	Timeout        float64                   `json:"timeout" validate:"gte=0"`          // seconds, default 30
	RateLimitDelay float64                   `json:"rate_limit_delay" validate:"gte=0"` // seconds between requests to one endpoint
	Endpoints      map[string]EndpointConfig `json:"endpoints" validate:"required,min=1,dive"`
}

// EndpointConfig describes one endpoint to pull records from.
type EndpointConfig struct {
	URL        string                 `json:"url" validate:"required"`
	Method     string                 `json:"method" validate:"omitempty,oneof=GET POST get post"`
	Params     map[string]string      `json:"params"`
	Data       map[string]interface{} `json:"data"` // POST body
	DataPath   string                 `json:"data_path"`
	DateFilter *DateFilter            `json:"date_filter"`
}

// DateFilter adds a "since" query parameter relative to today.
type DateFilter struct {
	Enabled   bool   `json:"enabled"`
	DaysBack  int    `json:"days_back" validate:"gte=0"`
	ParamName string `json:"param_name"`
	Format    string `json:"format"` // Go layout or strftime, default 2006-01-02
}

const healthEndpoint = "health"

type apiCollector struct {
	base
	params   APIParams
	client   *resty.Client
	names    []string
	limiters map[string]*rate.Limiter
}

func newAPICollector(b base, cfg model.CollectorConfig) (*apiCollector, error) {
	var p APIParams
	if err := decodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.Timeout == 0 {
		p.Timeout = 30
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(p.BaseURL, "/")).
		SetTimeout(seconds(p.Timeout)).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "route-pipeline/1.0").
		SetHeaders(p.Headers)

	authType := p.AuthType
	if authType == "" && p.APIKey != "" {
		authType = "api_key"
	}
	switch authType {
	case "api_key":
		client.SetHeader("X-API-Key", p.APIKey)
	case "bearer":
		client.SetAuthToken(p.APIKey)
	case "basic":
		client.SetBasicAuth(p.APIKey, p.APISecret)
	}

	c := &apiCollector{base: b, params: p, client: client, limiters: make(map[string]*rate.Limiter)}
	for name := range p.Endpoints {
		if p.RateLimitDelay > 0 {
			c.limiters[name] = rate.NewLimiter(rate.Every(seconds(p.RateLimitDelay)), 1)
		}
		if name != healthEndpoint {
			c.names = append(c.names, name)
		}
	}
	sort.Strings(c.names)
	if len(c.names) == 0 {
		return nil, model.Errorf(model.KindConfiguration, "collector "+cfg.Name, "no data endpoints configured")
	}
	return c, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *apiCollector) TestConnection(ctx context.Context) error {
	url := "/"
	if ep, ok := c.params.Endpoints[healthEndpoint]; ok {
		url = ep.URL
	}
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return model.NewError(model.KindSourceUnavailable, c.op("health check"), err)
	}
	return classifyStatus(c.op("health check"), resp)
}

// Fetch reads every data endpoint. A transient failure fails the whole fetch
// so a retry reads everything again; any other endpoint failure becomes a
// warning, unless no endpoint succeeded.
func (c *apiCollector) Fetch(ctx context.Context) (*FetchResult, error) {
	res := &FetchResult{}
	var firstErr error
	for _, name := range c.names {
		rows, err := c.fetchEndpoint(ctx, name, c.params.Endpoints[name], res)
		if err != nil {
			if model.IsRetryable(err) || ctx.Err() != nil {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			res.warn(model.KindOf(err), name, err.Error())
			c.logger.Warn("endpoint failed", "endpoint", name, "error", err)
			continue
		}
		res.Origins = append(res.Origins, name)
		for _, row := range rows {
			res.Records = append(res.Records, model.RawRecord{Origin: name, Fields: row})
		}
		c.logger.Info("fetched endpoint", "endpoint", name, "records", len(rows))
	}
	if firstErr != nil && len(res.Origins) == 0 {
		return nil, firstErr
	}
	return res, nil
}

func (c *apiCollector) fetchEndpoint(ctx context.Context, name string, ep EndpointConfig, res *FetchResult) ([]map[string]interface{}, error) {
	op := c.op("endpoint " + name)
	if l, ok := c.limiters[name]; ok {
		if err := l.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := c.client.R().SetContext(ctx).SetQueryParams(ep.Params)
	if df := ep.DateFilter; df != nil && df.Enabled {
		param := df.ParamName
		if param == "" {
			param = "from_date"
		}
		since := c.now().AddDate(0, 0, -df.DaysBack)
		req.SetQueryParam(param, since.Format(goLayout(df.Format)))
	}
	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodPost && ep.Data != nil {
		req.SetBody(ep.Data)
	}

	resp, err := req.Execute(method, ep.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewError(model.KindSourceUnavailable, op, err)
	}
	if err := classifyStatus(op, resp); err != nil {
		return nil, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, model.Errorf(model.KindMalformedInput, op, "response is not valid JSON")
	}
	result := gjson.ParseBytes(body)
	if ep.DataPath != "" {
		result = result.Get(ep.DataPath)
		if !result.Exists() {
			res.warn(model.KindMalformedInput, name, fmt.Sprintf("data_path %q not found in response", ep.DataPath))
			return nil, nil
		}
	}
	rows, err := jsonRows(result.Value())
	if err != nil {
		return nil, model.NewError(model.KindMalformedInput, op, err)
	}
	return rows, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return model.Errorf(model.KindRateLimited, op, "HTTP %d", code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.Errorf(model.KindAuth, op, "HTTP %d", code)
	case code == http.StatusRequestTimeout || code >= 500:
		return model.Errorf(model.KindSourceUnavailable, op, "HTTP %d", code)
	default:
		return model.Errorf(model.KindMalformedInput, op, "HTTP %d: %s", code, truncate(resp.String(), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var strftime = strings.NewReplacer("%Y", "2006", "%m", "01", "%d", "02", "%H", "15", "%M", "04", "%S", "05")

func goLayout(format string) string {
	if format == "" {
		return "2006-01-02"
	}
	return strftime.Replace(format)
}

func (c *apiCollector) Acknowledge(_ context.Context, _ []string) error { return nil }
