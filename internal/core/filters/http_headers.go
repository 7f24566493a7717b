// Package filters reúne os filtros predefinidos e o registro nome -> filtro
// usado para montar a tabela de rotas a partir da configuração.
package filters

import (
	"context"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

const (
	HTTPAcceptName         = "http_accept"
	HTTPAcceptEncodingName = "http_accept_encoding"
	HTTPAcceptLanguageName = "http_accept_language"
	HTTPConnectionName     = "http_connection"
	HTTPUserAgentName      = "http_user_agent"
)

// botUserAgent matches from the start of the User-Agent header.
var botUserAgent = regexp.MustCompile(`^(` +
	`unknown` +
	`|[Cc][Uu][Rr][Ll]|[wW]get|Scrapy|splash|JavaFX|FeedFetcher|python-requests|Go-http-client|Java|Jakarta|okhttp` +
	`|HttpClient|Jersey|Python|libwww-perl|Ruby|SynHttpClient|UniversalFeedParser|Googlebot|GoogleImageProxy` +
	`|bingbot|Baiduspider|yacybot|YandexMobileBot|YandexBot|Yahoo! Slurp|MJ12bot|AhrefsBot|archive\.org_bot|msnbot` +
	`|SeznamBot|linkdexbot|Netvibes|SMTBot|zgrab|James BOT|Sogou|Abonti|Pixray|Spinn3r|SemrushBot|Exabot` +
	`|ZmEu|BLEXBot|bitlybot|HeadlessChrome` +
	`|` + regexp.QuoteMeta(`Mozilla/5.0 (compatible; Farside/0.1.0; +https://farside.link)`) +
	`|.*PetalBot.*` +
	`)`)

// HTTPAccept rejects requests whose Accept header admits none of the
// configured MIME types. Wildcards */* and type/* admit.
func HTTPAccept() ports.Filter {
	return ports.NewFilter(HTTPAcceptName, func(_ context.Context, dc *ports.DetectionContext, _ domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		wanted := dc.Config.HTTPAcceptMIMETypes
		if len(wanted) == 0 {
			wanted = []string{"text/html"}
		}
		ranges := parseAccept(strings.Join(r.Header.Values("Accept"), ","))
		for _, mimeType := range wanted {
			if acceptsMIME(ranges, mimeType) {
				return domain.Allow, nil
			}
		}
		return domain.TooManyRequests("HTTP header Accept did not contain " + strings.Join(wanted, " or ")), nil
	})
}

func HTTPAcceptEncoding() ports.Filter {
	return ports.NewFilter(HTTPAcceptEncodingName, func(_ context.Context, _ *ports.DetectionContext, _ domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		for _, coding := range splitTokens(r.Header.Values("Accept-Encoding")) {
			if coding == "gzip" || coding == "deflate" {
				return domain.Allow, nil
			}
		}
		return domain.TooManyRequests("HTTP header Accept-Encoding did not contain gzip nor deflate"), nil
	})
}

func HTTPAcceptLanguage() ports.Filter {
	return ports.NewFilter(HTTPAcceptLanguageName, func(_ context.Context, _ *ports.DetectionContext, _ domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		if strings.TrimSpace(r.Header.Get("Accept-Language")) == "" {
			return domain.TooManyRequests("missing HTTP header Accept-Language"), nil
		}
		return domain.Allow, nil
	})
}

func HTTPConnection() ports.Filter {
	return ports.NewFilter(HTTPConnectionName, func(_ context.Context, _ *ports.DetectionContext, _ domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		if strings.EqualFold(strings.TrimSpace(r.Header.Get("Connection")), "close") {
			return domain.TooManyRequests("HTTP header 'Connection=close'"), nil
		}
		return domain.Allow, nil
	})
}

// HTTPUserAgent rejects known crawler and HTTP library user agents. A request
// without User-Agent counts as "unknown".
func HTTPUserAgent() ports.Filter {
	return ports.NewFilter(HTTPUserAgentName, func(_ context.Context, _ *ports.DetectionContext, _ domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		userAgent := r.Header.Get("User-Agent")
		if userAgent == "" {
			userAgent = "unknown"
		}
		if botUserAgent.MatchString(userAgent) {
			return domain.TooManyRequests("bot detected, HTTP header User-Agent: " + truncate(userAgent, maxLoggedUserAgent)), nil
		}
		return domain.Allow, nil
	})
}

// maxLoggedUserAgent limita o trecho do User-Agent copiado para o Reason.
const maxLoggedUserAgent = 128

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "") + "..."
}

type mediaRange struct {
	typ, subtype string
}

// parseAccept drops malformed entries and ranges with q=0.
func parseAccept(header string) []mediaRange {
	var out []mediaRange
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v <= 0 {
				continue
			}
		}
		typ, subtype, ok := strings.Cut(mediaType, "/")
		if !ok {
			continue
		}
		out = append(out, mediaRange{typ: typ, subtype: subtype})
	}
	return out
}

func acceptsMIME(ranges []mediaRange, mimeType string) bool {
	typ, subtype, _ := strings.Cut(strings.ToLower(mimeType), "/")
	for _, mr := range ranges {
		if mr.typ == "*" && mr.subtype == "*" {
			return true
		}
		if mr.typ == typ && (mr.subtype == "*" || mr.subtype == subtype) {
			return true
		}
	}
	return false
}

// splitTokens splits comma separated header values and strips parameters.
func splitTokens(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			token, _, _ := strings.Cut(part, ";")
			if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
				out = append(out, token)
			}
		}
	}
	return out
}
