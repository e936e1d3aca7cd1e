// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRate возвращается, если курс способа оплаты не положителен.
	ErrInvalidRate = errors.New("rate must be positive")
	// ErrInvalidPrice возвращается, если цена товара не положительна.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrInvalidName возвращается для пустого названия.
	ErrInvalidName = errors.New("name must not be empty")
	// ErrInvalidPaymentCode возвращается для кода способа оплаты вне [a-z0-9].
	ErrInvalidPaymentCode = errors.New("payment code must consist of latin letters and digits")
	// ErrInvalidOrderNumber возвращается, если номер заявки не является положительным числом.
	ErrInvalidOrderNumber = errors.New("invalid order number")
)

// MatchKey приводит строку к ключу регистронезависимого сравнения.
func MatchKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CityMatchKeys возвращает ключи поиска города: название и все варианты написания без повторов.
func CityMatchKeys(name string, aliases []string) []string {
	keys := []string{MatchKey(name)}
	for _, a := range aliases {
		k := MatchKey(a)
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// NormalizeName обрезает пробелы и проверяет, что название не пустое.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// ParseAliases разбирает список вариантов написания города, введённый через запятую.
// Строка "-" означает отсутствие вариантов.
func ParseAliases(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil
	}
	return NormalizeAliases(strings.Split(raw, ","))
}

// NormalizeAliases обрезает пробелы, выбрасывает пустые значения и повторы без учёта регистра.
func NormalizeAliases(aliases []string) []string {
	seen := make(map[string]struct{}, len(aliases))
	res := make([]string, 0, len(aliases))
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := MatchKey(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res = append(res, a)
	}
	return res
}

// ValidateRate проверяет курс способа оплаты.
func ValidateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	return nil
}

// ValidatePrice проверяет цену товара.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// NormalizePaymentCode приводит код способа оплаты к нижнему регистру и проверяет алфавит.
// Код попадает в callback-данные вида "payment_<code>", поэтому подчёркивания запрещены.
func NormalizePaymentCode(code string) (string, error) {
	code = MatchKey(code)
	if code == "" {
		return "", ErrInvalidPaymentCode
	}
	for _, ch := range code {
		if ch > unicode.MaxASCII || !(unicode.IsLetter(ch) || unicode.IsDigit(ch)) {
			return "", ErrInvalidPaymentCode
		}
	}
	return code, nil
}

// ParseOrderNumber разбирает номер заявки.
func ParseOrderNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidOrderNumber
	}
	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return 0, ErrInvalidOrderNumber
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidOrderNumber
	}
	return n, nil
}
