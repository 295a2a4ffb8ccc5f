package colmap

import "math"

var nan = math.NaN()

// ABZeroPointJy is the flux density of an AB magnitude of zero, in Jansky.
const ABZeroPointJy = 3631.0

// FluxFromMag converts an AB magnitude to flux density in Jansky.
func FluxFromMag(mag float64) float64 {
	return ABZeroPointJy * math.Pow(10, -0.4*mag)
}

// FluxSigmaFromMagErr propagates a magnitude error to the flux error.
func FluxSigmaFromMagErr(flux, magErr float64) float64 {
	return flux * math.Ln10 / 2.5 * magErr
}

// MagFromFlux is the inverse of FluxFromMag.
func MagFromFlux(flux float64) float64 {
	return -2.5 * math.Log10(flux/ABZeroPointJy)
}
