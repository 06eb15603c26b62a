package ngram

import "strings"

// stopwordList is the standard English stopword set. Grams made of nothing
// but these carry no topical signal and would drown the counts.
var stopwordList = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you",
	"your", "yours", "yourself", "yourselves", "he", "him", "his", "himself",
	"she", "her", "hers", "herself", "it", "its", "itself", "they", "them",
	"their", "theirs", "themselves", "what", "which", "who", "whom", "this",
	"that", "these", "those", "am", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "having", "do", "does", "did", "doing",
	"a", "an", "the", "and", "but", "if", "or", "because", "as", "until",
	"while", "of", "at", "by", "for", "with", "about", "against", "between",
	"into", "through", "during", "before", "after", "above", "below", "to",
	"from", "up", "down", "in", "out", "on", "off", "over", "under", "again",
	"further", "then", "once", "here", "there", "when", "where", "why",
	"how", "all", "any", "both", "each", "few", "more", "most", "other",
	"some", "such", "no", "nor", "not", "only", "own", "same", "so", "than",
	"too", "very", "s", "t", "can", "will", "just", "don", "dont", "should",
	"now", "d", "ll", "m", "o", "re", "ve", "y", "im", "amp", "rt",
}

// DefaultStopwords returns a fresh copy of the stopword set so callers can
// extend it without touching the package default.
func DefaultStopwords() map[string]bool {
	set := make(map[string]bool, len(stopwordList))
	for _, w := range stopwordList {
		set[w] = true
	}
	return set
}

// isStopword also catches the placeholder tokens the cleaner leaves behind.
func isStopword(set map[string]bool, token string) bool {
	return set[token] || strings.HasPrefix(token, "<")
}
