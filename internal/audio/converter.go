package audio

import (
	"fmt"
	"math"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples.
func DecodePCM16(pcmData []byte) ([]int16, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]int16, len(pcmData)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples, nil
}

// EncodePCM16 converts samples to little-endian 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ResamplePCM16 converts a PCM16 LE mono chunk from inputRate to outputRate.
// Equal rates return the input unchanged.
func ResamplePCM16(pcmData []byte, inputRate, outputRate int) ([]byte, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inputRate, outputRate)
	}
	if inputRate == outputRate {
		if len(pcmData)%2 != 0 {
			return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
		}
		return pcmData, nil
	}

	samples, err := DecodePCM16(pcmData)
	if err != nil {
		return nil, err
	}
	return EncodePCM16(resample(samples, inputRate, outputRate)), nil
}

// resample performs linear interpolation resampling. Speech recognition is tolerant
// of the small aliasing this introduces when downsampling 48kHz capture to 16kHz.
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS calculates the root mean square of samples.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilent reports whether a PCM16 chunk is below the RMS threshold.
// Malformed chunks are never reported silent.
func IsSilent(pcmData []byte, threshold float64) bool {
	samples, err := DecodePCM16(pcmData)
	if err != nil || len(samples) == 0 {
		return false
	}
	return CalculateRMS(samples) < threshold
}
