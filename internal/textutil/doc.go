// Package textutil provides filename normalization and similarity scoring for
// the detection engine's filename signal.
//
// Normalization transliterates non-ASCII names, lowercases, strips diacritics,
// and removes the duplicate markers file managers append ("copy", " (1)",
// "-2"), so IMG_0412.JPG and "img_0412 copy (2).jpg" compare as the same
// name. Similarity is cosine similarity over term-frequency token vectors.
package textutil
