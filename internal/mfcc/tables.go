package mfcc

import "math"

// hannWindow returns the symmetric Hann window of length n.
func hannWindow(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1))))
	}
	return w
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }

func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// melBinPoints returns the NumMels+2 filter boundary points as spectrum bins.
func melBinPoints() []int {
	melHigh := hzToMel(SampleRate / 2)
	points := make([]int, NumMels+2)
	for i := range points {
		mel := melHigh * float64(i) / float64(NumMels+1)
		points[i] = int(math.Floor(float64(WindowSamples+1) * melToHz(mel) / SampleRate))
	}
	return points
}

// melFilterbank builds the row-major NumMels x NumBins triangular filterbank.
func melFilterbank() []float32 {
	fb := make([]float32, NumMels*NumBins)
	bins := melBinPoints()

	for m := range NumMels {
		left, center, right := bins[m], bins[m+1], bins[m+2]
		row := fb[m*NumBins : (m+1)*NumBins]

		if center > left {
			for k := left; k < center; k++ {
				row[k] = float32(k-left) / float32(center-left)
			}
		}
		if right > center {
			for k := center; k < right; k++ {
				row[k] = float32(right-k) / float32(right-center)
			}
		}
	}
	return fb
}

// dctMatrix builds the row-major NumMFCC x NumMels orthonormal DCT-II matrix.
func dctMatrix() []float32 {
	d := make([]float32, NumMFCC*NumMels)
	scale0 := math.Sqrt(1.0 / NumMels)
	scale := math.Sqrt(2.0 / NumMels)

	for i := range NumMFCC {
		s := scale
		if i == 0 {
			s = scale0
		}
		for j := range NumMels {
			d[i*NumMels+j] = float32(math.Cos(math.Pi*float64(i)*(float64(j)+0.5)/NumMels) * s)
		}
	}
	return d
}

// twiddles returns cos and sin of -2*pi*i/n for i in [0, n). The DFT indexes
// them with (k*n) mod WindowSamples.
func twiddles(n int) (cosT, sinT []float64) {
	cosT = make([]float64, n)
	sinT = make([]float64, n)
	for i := range n {
		angle := -2 * math.Pi * float64(i) / float64(n)
		cosT[i] = math.Cos(angle)
		sinT[i] = math.Sin(angle)
	}
	return cosT, sinT
}
