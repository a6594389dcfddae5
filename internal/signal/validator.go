package signal

import (
	"github.com/ramonzeraa/teste-crypto/internal/config"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// Validator scores incoming signals and gates them on market quality before
// they reach risk evaluation. It holds no mutable state: rejected signals
// only produce a structured reason for logging and alerting.
type Validator struct {
	weights          config.WeightConfig
	threshold        float64
	minConfidence    float64
	minConfirmations int
	maxSpread        float64
	maxVolatility    float64
	minVolume24h     float64
}

// Options are the tunable validator knobs; weights are normalized so callers
// can express them in any consistent scale.
type Options struct {
	Weights          config.WeightConfig
	Threshold        float64
	MinConfidence    float64
	MinConfirmations int
	MaxSpread        float64
	MaxVolatility    float64
	MinVolume24h     float64
}

func NewValidator(opts Options) *Validator {
	w := opts.Weights
	if sum := w.Sum(); sum > 0 {
		w.Indicator /= sum
		w.Pattern /= sum
		w.Volume /= sum
		w.Context /= sum
	}
	return &Validator{
		weights:          w,
		threshold:        opts.Threshold,
		minConfidence:    opts.MinConfidence,
		minConfirmations: opts.MinConfirmations,
		maxSpread:        opts.MaxSpread,
		maxVolatility:    opts.MaxVolatility,
		minVolume24h:     opts.MinVolume24h,
	}
}

// Composite returns the weighted aggregate of the per-category scores.
func (v *Validator) Composite(scores types.SignalScores) float64 {
	w := v.weights
	return scores.Indicator*w.Indicator +
		scores.Pattern*w.Pattern +
		scores.Volume*w.Volume +
		scores.Context*w.Context
}

// Validate gates sig against the composite threshold, the confirmation
// minimum and the market-quality bounds. The returned error is always a
// *types.Rejection; the pipeline logs it and moves on.
func (v *Validator) Validate(sig types.Signal, market types.MarketSnapshot) (types.ValidatedSignal, error) {
	composite := v.Composite(sig.Scores)
	if composite < v.threshold {
		return types.ValidatedSignal{}, types.Rejectf(types.ReasonLowConfidence,
			"composite %.3f below threshold %.3f", composite, v.threshold)
	}
	if v.minConfidence > 0 && sig.Confidence < v.minConfidence {
		return types.ValidatedSignal{}, types.Rejectf(types.ReasonLowConfidence,
			"model confidence %.3f below minimum %.3f", sig.Confidence, v.minConfidence)
	}
	if sig.Confirmations < v.minConfirmations {
		return types.ValidatedSignal{}, types.Rejectf(types.ReasonLowConfirmations,
			"%d confirmations, need %d", sig.Confirmations, v.minConfirmations)
	}

	if v.maxSpread > 0 && market.LastPrice > 0 {
		spreadFrac := market.Spread / market.LastPrice
		if spreadFrac > v.maxSpread {
			return types.ValidatedSignal{}, types.Rejectf(types.ReasonSpreadTooWide,
				"spread %.5f above bound %.5f", spreadFrac, v.maxSpread)
		}
	}
	if v.maxVolatility > 0 && market.Volatility > v.maxVolatility {
		return types.ValidatedSignal{}, types.Rejectf(types.ReasonVolatilityTooHigh,
			"volatility %.4f above bound %.4f", market.Volatility, v.maxVolatility)
	}
	if v.minVolume24h > 0 && market.Volume24h < v.minVolume24h {
		return types.ValidatedSignal{}, types.Rejectf(types.ReasonVolumeTooLow,
			"24h volume %.0f below minimum %.0f", market.Volume24h, v.minVolume24h)
	}

	return types.ValidatedSignal{Signal: sig, Composite: composite}, nil
}

// FromConfig wires the validator from the loaded configuration.
func FromConfig(cfg *config.Config) *Validator {
	return NewValidator(Options{
		Weights:          cfg.Signal.Weights,
		Threshold:        cfg.Trading.SignalThreshold,
		MinConfidence:    cfg.Risk.MinConfidence,
		MinConfirmations: cfg.Signal.MinConfirmations,
		MaxSpread:        cfg.Signal.MaxSpread,
		MaxVolatility:    cfg.Signal.MaxVolatility,
		MinVolume24h:     cfg.Risk.MinVolume24h,
	})
}
