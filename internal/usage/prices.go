package usage

import "math"

// Image sizes accepted by the image generation endpoint.
const (
	ImageSizeSmall  = "256x256"
	ImageSizeMedium = "512x512"
	ImageSizeLarge  = "1024x1024"
)

// Prices converts usage into dollars.
type Prices struct {
	// TokenPrice is the price of 1000 tokens.
	TokenPrice float64 `yaml:"token_price"`

	// ImagePrices maps an image size to its price.
	ImagePrices map[string]float64 `yaml:"image_prices"`

	// TranscriptionPrice is the price of one minute of audio.
	TranscriptionPrice float64 `yaml:"transcription_price"`
}

// DefaultPrices returns the list prices used when none are configured.
func DefaultPrices() Prices {
	return Prices{
		TokenPrice: 0.002,
		ImagePrices: map[string]float64{
			ImageSizeSmall:  0.016,
			ImageSizeMedium: 0.018,
			ImageSizeLarge:  0.02,
		},
		TranscriptionPrice: 0.006,
	}
}

func (p Prices) withDefaults() Prices {
	d := DefaultPrices()
	if p.TokenPrice <= 0 {
		p.TokenPrice = d.TokenPrice
	}
	if len(p.ImagePrices) == 0 {
		p.ImagePrices = d.ImagePrices
	}
	if p.TranscriptionPrice <= 0 {
		p.TranscriptionPrice = d.TranscriptionPrice
	}
	return p
}

// Tokens returns the price of n tokens.
func (p Prices) Tokens(n int) float64 {
	return round(float64(n) / 1000 * p.TokenPrice)
}

// Image returns the price of one image of the given size.
func (p Prices) Image(size string) (float64, bool) {
	price, ok := p.ImagePrices[size]
	return price, ok
}

// Transcription returns the price of seconds of audio.
func (p Prices) Transcription(seconds float64) float64 {
	return round(seconds / 60 * p.TranscriptionPrice)
}

// round keeps six decimals so repeated additions do not drift.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
