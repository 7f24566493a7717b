package domain

import "time"

type RealIPConfig struct {
	// XFor é a quantidade de proxies confiáveis à frente da aplicação.
	XFor       int
	IPv4Prefix int
	IPv6Prefix int
}

type IPLimitConfig struct {
	// FilterLinkLocal=false deixa redes link-local/loopback fora da cadeia de filtros.
	FilterLinkLocal bool
	// LinkLocalSkipsLists=true também as deixa fora da pass-list e da block-list.
	LinkLocalSkipsLists bool
	// LinkToken ativa o modo "suspeito" do filtro ip_limit.
	LinkToken bool

	Burst              RateLimitRule
	BurstMaxSuspicious int
	Long               RateLimitRule
	LongMaxSuspicious  int
	Suspicious         RateLimitRule
}

type LinkTokenConfig struct {
	TokenTTL time.Duration
	PingTTL  time.Duration
	Length   int
}

// DetectionConfig é carregada uma vez e compartilhada, somente leitura,
// por todas as avaliações concorrentes.
type DetectionConfig struct {
	RealIP              RealIPConfig
	IPLimit             IPLimitConfig
	LinkToken           LinkTokenConfig
	HTTPAcceptMIMETypes []string
	RateLimits          map[string]RateLimitRule
	PassList            []ListEntry
	BlockList           []ListEntry
	Routes              map[string][]string
	FailOpen            bool
}

// DefaultDetectionConfig returns the "no lists, no limits" configuration.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		RealIP: RealIPConfig{
			XFor:       1,
			IPv4Prefix: 32,
			IPv6Prefix: 48,
		},
		IPLimit: IPLimitConfig{
			Burst:              RateLimitRule{Requests: 15, Window: 20 * time.Second},
			BurstMaxSuspicious: 2,
			Long:               RateLimitRule{Requests: 150, Window: 10 * time.Minute},
			LongMaxSuspicious:  10,
			Suspicious:         RateLimitRule{Requests: 3, Window: 30 * 24 * time.Hour},
		},
		LinkToken: LinkTokenConfig{
			TokenTTL: 10 * time.Minute,
			PingTTL:  time.Hour,
			Length:   16,
		},
		HTTPAcceptMIMETypes: []string{"text/html"},
		RateLimits:          map[string]RateLimitRule{},
		Routes:              map[string][]string{},
		FailOpen:            true,
	}
}
