// Package tempo guesses the tempo of a sample file, first from hints in the
// filename (loops are commonly named "break_bpm174.wav" or "beats16_...")
// and otherwise from the file duration against plausible beat counts.
package tempo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

var (
	reBPM    = regexp.MustCompile(`bpm[_-]?([0-9]+)`)
	reBeats  = regexp.MustCompile(`beats[_-]?([0-9]+)`)
	reNumber = regexp.MustCompile(`[0-9]+`)
)

// Guess returns the estimated beat count and tempo for a WAV file.
func Guess(path string) (beats float64, bpm float64, err error) {
	beats, bpm, err = parseName(path)
	offGrid := math.Mod(beats, 4) != 0
	if err != nil || bpm < 60 || bpm > 200 || offGrid {
		beats, bpm, err = guessFromDuration(path)
	}
	return
}

// Duration returns the playing time of a WAV file in seconds.
func Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a valid wav file: %s", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

func parseName(path string) (beats float64, bpm float64, err error) {
	_, fname := filepath.Split(path)
	fname = strings.ToLower(fname)

	duration, err := Duration(path)
	if err != nil {
		return
	}

	if m := reBPM.FindStringSubmatch(fname); len(m) > 1 {
		bpm, err = strconv.ParseFloat(m[1], 64)
	} else {
		err = fmt.Errorf("no bpm hint in %s", fname)
		for _, num := range reNumber.FindAllString(fname, -1) {
			n, perr := strconv.ParseFloat(num, 64)
			if perr == nil && n >= 60 && n <= 200 && math.Mod(n, 5) == 0 {
				bpm, err = n, nil
				break
			}
		}
	}
	if err != nil {
		return
	}

	if m := reBeats.FindStringSubmatch(fname); len(m) > 1 {
		beats, _ = strconv.ParseFloat(m[1], 64)
	}
	if beats == 0 {
		beats = math.Round(duration / (60 / bpm))
	}
	return
}

// guessFromDuration picks the (beats, bpm) pair whose implied duration sits
// closest to the file's actual duration, preferring power-of-two beat
// counts.
func guessFromDuration(path string) (beats float64, bpm float64, err error) {
	duration, err := Duration(path)
	if err != nil {
		return
	}

	type guess struct {
		diff, bpm, beats float64
	}
	var guesses []guess
	for beat := 1.0; beat <= 64; beat++ {
		for bp := 60.0; bp <= 200; bp++ {
			guesses = append(guesses, guess{math.Abs(duration - beat*60.0/bp), bp, beat})
		}
	}

	powerOfTwo := func(n float64) bool {
		if n < 1 {
			return false
		}
		l := math.Log2(n)
		return math.Abs(l-math.Round(l)) < 1e-9
	}
	sort.Slice(guesses, func(i, j int) bool {
		if guesses[i].diff != guesses[j].diff {
			return guesses[i].diff < guesses[j].diff
		}
		iPow, jPow := powerOfTwo(guesses[i].beats), powerOfTwo(guesses[j].beats)
		if iPow != jPow {
			return iPow
		}
		return guesses[i].beats < guesses[j].beats
	})

	return guesses[0].beats, guesses[0].bpm, nil
}
