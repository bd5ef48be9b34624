package composer

import (
	"fmt"
	"sort"
)

// Ballot is a single stakeholder's ranked preference over candidates.
// Rankings is ordered best-first; each inner slice holds candidates tied
// at that preference level. Grounded on
// original_source/python/src/vcp/extensions/consensus.py's Ballot.
type Ballot struct {
	VoterID  string
	Rankings [][]string
}

func (b Ballot) validate() error {
	if len(b.Rankings) == 0 {
		return fmt.Errorf("composer: ballot %q has empty rankings", b.VoterID)
	}
	seen := map[string]bool{}
	for _, group := range b.Rankings {
		if len(group) == 0 {
			return fmt.Errorf("composer: ballot %q has an empty ranking group", b.VoterID)
		}
		for _, c := range group {
			if seen[c] {
				return fmt.Errorf("composer: ballot %q has duplicate candidate %q", b.VoterID, c)
			}
			seen[c] = true
		}
	}
	return nil
}

// Ranking is a candidate's position in the final Schulze ranking.
type Ranking struct {
	Candidate string
	Rank      int
	Wins      int
	Losses    int
}

// ElectionResult is the full outcome of a Schulze election.
type ElectionResult struct {
	Ranking        []Ranking
	PairwiseMatrix [][]int
	StrongestPaths [][]int
	DissentNotes   []string
}

// Winner returns the top-ranked candidate, or "" if no ballots were cast.
func (r ElectionResult) Winner() string {
	if len(r.Ranking) == 0 {
		return ""
	}
	return r.Ranking[0].Candidate
}

// Election runs the Schulze method (Condorcet-consistent, clone-
// independent ranked preference aggregation) over a fixed candidate set.
// Used by the Constitutional Consensus extension for multi-stakeholder
// deliberation over competing constitution layers when a composition mode
// alone cannot resolve which rule set should govern.
type Election struct {
	candidates []string
	index      map[string]int
	ballots    []Ballot
}

// NewElection creates an election over candidates, which must be
// non-empty and unique.
func NewElection(candidates []string) (*Election, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("composer: election candidates must be non-empty")
	}
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("composer: duplicate candidate %q", c)
		}
		index[c] = i
	}
	cp := make([]string, len(candidates))
	copy(cp, candidates)
	return &Election{candidates: cp, index: index}, nil
}

// AddBallot records a ranked ballot from a stakeholder.
func (e *Election) AddBallot(b Ballot) error {
	if err := b.validate(); err != nil {
		return err
	}
	e.ballots = append(e.ballots, b)
	return nil
}

// BallotCount returns the number of ballots cast so far.
func (e *Election) BallotCount() int {
	return len(e.ballots)
}

// Compute runs the Schulze method and returns the full ranking.
func (e *Election) Compute() ElectionResult {
	n := len(e.candidates)
	if len(e.ballots) == 0 {
		return ElectionResult{
			PairwiseMatrix: zeroMatrix(n),
			StrongestPaths: zeroMatrix(n),
			DissentNotes:   []string{"No ballots cast"},
		}
	}

	d := e.buildPairwiseMatrix()
	p := e.computeStrongestPaths(d)
	ranking, dissent := e.determineRanking(p)

	return ElectionResult{Ranking: ranking, PairwiseMatrix: d, StrongestPaths: p, DissentNotes: dissent}
}

func zeroMatrix(n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	return m
}

// buildPairwiseMatrix counts, over all ballots, how many prefer candidate
// i over candidate j: d[i][j].
func (e *Election) buildPairwiseMatrix() [][]int {
	n := len(e.candidates)
	d := zeroMatrix(n)

	for _, ballot := range e.ballots {
		position := map[string]int{}
		rank := 0
		for _, group := range ballot.Rankings {
			for _, cid := range group {
				if _, ok := e.index[cid]; ok {
					position[cid] = rank
				}
			}
			rank++
		}
		for _, cid := range e.candidates {
			if _, ok := position[cid]; !ok {
				position[cid] = rank
			}
		}

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				ci, cj := e.candidates[i], e.candidates[j]
				pi, pj := position[ci], position[cj]
				if pi < pj {
					d[i][j]++
				} else if pj < pi {
					d[j][i]++
				}
			}
		}
	}
	return d
}

// computeStrongestPaths runs the modified Floyd-Warshall over winning
// votes: an edge i→j carries d[i][j] when d[i][j] > d[j][i], and path
// strength is the minimum edge weight along the path.
func (e *Election) computeStrongestPaths(d [][]int) [][]int {
	n := len(e.candidates)
	p := zeroMatrix(n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && d[i][j] > d[j][i] {
				p[i][j] = d[i][j]
			}
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if i == k {
				continue
			}
			for j := 0; j < n; j++ {
				if j == i || j == k {
					continue
				}
				viaK := min(p[i][k], p[k][j])
				if viaK > p[i][j] {
					p[i][j] = viaK
				}
			}
		}
	}
	return p
}

// determineRanking converts the strongest-path matrix into an ordered
// ranking: i beats j iff p[i][j] > p[j][i].
func (e *Election) determineRanking(p [][]int) ([]Ranking, []string) {
	n := len(e.candidates)
	var dissent []string

	wins := make([]int, n)
	losses := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if p[i][j] > p[j][i] {
				wins[i]++
				losses[j]++
			} else if p[i][j] == p[j][i] && p[i][j] > 0 {
				dissent = append(dissent, fmt.Sprintf("tie between %s and %s", e.candidates[i], e.candidates[j]))
			}
		}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool { return wins[indices[a]] > wins[indices[b]] })

	rankings := make([]Ranking, 0, n)
	currentRank := 1
	for pos, idx := range indices {
		if pos > 0 && wins[idx] < wins[indices[pos-1]] {
			currentRank = pos + 1
		}
		rankings = append(rankings, Ranking{
			Candidate: e.candidates[idx],
			Rank:      currentRank,
			Wins:      wins[idx],
			Losses:    losses[idx],
		})
	}
	return rankings, dissent
}
