package search

import "math"

// Similarity supplies the scoring factors of the classic vector space
// model.
type Similarity interface {
	// Coord rewards docs matching more of a boolean query's clauses.
	Coord(overlap, maxOverlap int) float64
	QueryNorm(sumOfSquaredWeights float64) float64
	Tf(freq float64) float64
	Idf(docFreq, numDocs int64) float64
	// SloppyFreq weights a sloppy phrase match by its edit distance.
	SloppyFreq(distance int) float64
	// LengthNorm weights a field by its token count.
	LengthNorm(numTerms int) float64
}

// DefaultSimilarity is classic TF-IDF.
type DefaultSimilarity struct{}

func (DefaultSimilarity) Coord(overlap, maxOverlap int) float64 {
	if maxOverlap == 0 {
		return 1
	}
	return float64(overlap) / float64(maxOverlap)
}

func (DefaultSimilarity) QueryNorm(sumOfSquaredWeights float64) float64 {
	return 1 / math.Sqrt(sumOfSquaredWeights)
}

func (DefaultSimilarity) Tf(freq float64) float64 {
	return math.Sqrt(freq)
}

func (DefaultSimilarity) Idf(docFreq, numDocs int64) float64 {
	return 1 + math.Log(float64(numDocs)/float64(docFreq+1))
}

func (DefaultSimilarity) SloppyFreq(distance int) float64 {
	return 1 / float64(distance+1)
}

func (DefaultSimilarity) LengthNorm(numTerms int) float64 {
	if numTerms <= 0 {
		return 1
	}
	return 1 / math.Sqrt(float64(numTerms))
}

// CoordFunc overrides only the coord factor of another Similarity.
type CoordFunc struct {
	Similarity
	Fn func(overlap, maxOverlap int) float64
}

func (c CoordFunc) Coord(overlap, maxOverlap int) float64 {
	return c.Fn(overlap, maxOverlap)
}
