package insights

import (
	"math"
	"sort"
	"strings"

	"shop-insights/internal/models"
)

// priceIndex сопоставляет название услуги из визита с записью каталога.
// Сначала точное совпадение, затем без учета регистра и пробелов по краям.
type priceIndex struct {
	exact  map[string]models.CatalogEntry
	folded map[string]models.CatalogEntry
}

func newPriceIndex(entries []models.CatalogEntry) *priceIndex {
	idx := &priceIndex{
		exact:  make(map[string]models.CatalogEntry, len(entries)),
		folded: make(map[string]models.CatalogEntry, len(entries)),
	}
	for _, e := range entries {
		idx.exact[e.Name] = e
		key := normalizeName(e.Name)
		if _, ok := idx.folded[key]; !ok {
			idx.folded[key] = e
		}
	}
	return idx
}

func (p *priceIndex) lookup(serviceName string) (models.CatalogEntry, bool) {
	if e, ok := p.exact[serviceName]; ok {
		return e, true
	}
	e, ok := p.folded[normalizeName(serviceName)]
	return e, ok
}

// price возвращает цену услуги или 0, если услуги нет в каталоге
func (p *priceIndex) price(serviceName string) float64 {
	if e, ok := p.lookup(serviceName); ok {
		return e.Price
	}
	return 0
}

// serviceTiers делит каталог на базовые (цена <= средней) и премиальные услуги
type serviceTiers struct {
	index   *priceIndex
	average float64
	premium []models.CatalogEntry // по возрастанию цены, затем по имени
}

func newServiceTiers(entries []models.CatalogEntry) serviceTiers {
	t := serviceTiers{index: newPriceIndex(entries)}
	if len(entries) == 0 {
		return t
	}

	var sum float64
	for _, e := range entries {
		sum += e.Price
	}
	t.average = sum / float64(len(entries))

	for _, e := range entries {
		if e.Price > t.average {
			t.premium = append(t.premium, e)
		}
	}
	sort.SliceStable(t.premium, func(i, j int) bool {
		if t.premium[i].Price != t.premium[j].Price {
			return t.premium[i].Price < t.premium[j].Price
		}
		return t.premium[i].Name < t.premium[j].Name
	})

	return t
}

// onlyBasic: все известные каталогу услуги клиента базовые. Неизвестные услуги пропускаются.
func (t serviceTiers) onlyBasic(booked []string) bool {
	known := 0
	for _, name := range booked {
		e, ok := t.index.lookup(name)
		if !ok {
			continue
		}
		known++
		if e.Price > t.average {
			return false
		}
	}
	return known > 0
}

func (t serviceTiers) tried(booked []string) map[string]bool {
	tried := make(map[string]bool, len(booked))
	for _, name := range booked {
		if e, ok := t.index.lookup(name); ok {
			tried[e.Name] = true
		}
	}
	return tried
}

// untriedPremium возвращает до limit премиальных услуг, которые клиент не пробовал
func (t serviceTiers) untriedPremium(booked []string, limit int) []models.CatalogEntry {
	tried := t.tried(booked)
	var result []models.CatalogEntry
	for _, e := range t.premium {
		if tried[e.Name] {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// growthRate: (this - last) / last * 100; при last == 0 - 0 или 100.
func growthRate(thisPeriod, lastPeriod int) float64 {
	if lastPeriod == 0 {
		if thisPeriod == 0 {
			return 0
		}
		return 100
	}
	return float64(thisPeriod-lastPeriod) / float64(lastPeriod) * 100
}

func revenuePerHour(revenue float64, completed, durationMinutes int) float64 {
	hours := float64(completed) * float64(durationMinutes) / 60
	if hours <= 0 {
		return 0
	}
	return revenue / hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
