// Package branchpred implements the 2-bit saturating-counter branch
// predictor with a Branch Target Buffer and a global-history pattern
// table (spec.md §4.6).
package branchpred

import "github.com/google/btree"

// State is a 2-bit saturating counter.
type State int

const (
	StronglyNotTaken State = iota
	WeaklyNotTaken
	WeaklyTaken
	StronglyTaken
)

func (s State) taken() bool {
	return s == WeaklyTaken || s == StronglyTaken
}

func (s State) update(actualTaken bool) State {
	if actualTaken {
		if s < StronglyTaken {
			return s + 1
		}
		return StronglyTaken
	}
	if s > StronglyNotTaken {
		return s - 1
	}
	return StronglyNotTaken
}

func (s State) confidence() float64 {
	if s == StronglyNotTaken || s == StronglyTaken {
		return 0.9
	}
	return 0.6
}

// btbEntry is a Branch Target Buffer entry, keyed by PC.
type btbEntry struct {
	pc     int
	target int
	state  State
}

// Prediction is the result of a Predict call.
type Prediction struct {
	Taken      bool
	Target     int
	Confidence float64
	BTBHit     bool
}

// Stats mirrors the original predictor's accuracy bookkeeping.
type Stats struct {
	TotalPredictions   int
	CorrectPredictions int
	BTBHits            int
	BTBMisses          int
	TakenCorrect       int
	NotTakenCorrect    int
	Mispredictions     int
}

// Predictor is a 2-bit-counter/BTB/global-history branch predictor.
// BiasBEQTakenOnMiss applies a loop-closing heuristic: on a BTB miss
// for a BEQ whose pattern-table entry reads WeaklyNotTaken, predict
// taken anyway. Defaults off; set it explicitly to enable the bias.
type Predictor struct {
	btbSize            int
	btb                *btree.BTreeG[*btbEntry]
	byPC               map[int]*btbEntry
	historyBits        uint
	globalHistory      int
	patternTable       []State
	BiasBEQTakenOnMiss bool

	stats Stats
}

// NewPredictor creates a predictor with the given BTB capacity and
// global-history width in bits. Every pattern-table counter starts at
// WeaklyNotTaken.
func NewPredictor(btbSize int, historyBits uint) *Predictor {
	p := &Predictor{
		btbSize:      btbSize,
		btb:          btree.NewG[*btbEntry](32, func(a, b *btbEntry) bool { return a.pc < b.pc }),
		byPC:         make(map[int]*btbEntry),
		historyBits:  historyBits,
		patternTable: make([]State, 1<<historyBits),
	}
	for i := range p.patternTable {
		p.patternTable[i] = WeaklyNotTaken
	}
	return p
}

func (p *Predictor) historyMask() int {
	return (1 << p.historyBits) - 1
}

// Predict returns a prediction for a branch at pc. isBEQ selects the
// BEQ-taken bias when BiasBEQTakenOnMiss is set.
func (p *Predictor) Predict(pc int, isBEQ bool) Prediction {
	p.stats.TotalPredictions++

	if e, hit := p.byPC[pc]; hit {
		p.stats.BTBHits++
		return Prediction{
			Taken:      e.state.taken(),
			Target:     e.target,
			Confidence: e.state.confidence(),
			BTBHit:     true,
		}
	}

	p.stats.BTBMisses++
	idx := p.globalHistory & p.historyMask()
	state := p.patternTable[idx]
	taken := state.taken()
	if isBEQ && p.BiasBEQTakenOnMiss && state == WeaklyNotTaken {
		taken = true
	}
	return Prediction{
		Taken:      taken,
		Target:     pc + 1, // corrected once the real target is known, at Update
		Confidence: state.confidence(),
		BTBHit:     false,
	}
}

// Update records the actual outcome of a branch previously predicted
// with Predict, updating the BTB, global history, and pattern table.
func (p *Predictor) Update(pc int, actualTaken bool, actualTarget int, pred Prediction) {
	if pred.Taken == actualTaken {
		p.stats.CorrectPredictions++
		if actualTaken {
			p.stats.TakenCorrect++
		} else {
			p.stats.NotTakenCorrect++
		}
	} else {
		p.stats.Mispredictions++
	}

	p.updateBTB(pc, actualTaken, actualTarget)

	bit := 0
	if actualTaken {
		bit = 1
	}
	p.globalHistory = ((p.globalHistory << 1) | bit) & p.historyMask()
	p.patternTable[p.globalHistory] = p.patternTable[p.globalHistory].update(actualTaken)
}

// updateBTB inserts or refreshes pc's entry, evicting the
// lowest-keyed (smallest PC) entry when the BTB is at capacity, via
// the ordered btree index rather than a linear min-scan.
func (p *Predictor) updateBTB(pc int, taken bool, target int) {
	e, exists := p.byPC[pc]
	if !exists {
		if len(p.byPC) >= p.btbSize {
			min, ok := p.btb.Min()
			if ok {
				delete(p.byPC, min.pc)
				p.btb.Delete(min)
			}
		}
		e = &btbEntry{pc: pc, state: WeaklyNotTaken}
		p.byPC[pc] = e
		p.btb.ReplaceOrInsert(e)
	}
	e.target = target
	e.state = e.state.update(taken)
}

// Stats returns a snapshot of prediction accuracy statistics.
func (p *Predictor) Stats() Stats {
	return p.stats
}

// Accuracy returns CorrectPredictions/TotalPredictions, or 0 if none made.
func (p *Predictor) Accuracy() float64 {
	if p.stats.TotalPredictions == 0 {
		return 0
	}
	return float64(p.stats.CorrectPredictions) / float64(p.stats.TotalPredictions)
}
