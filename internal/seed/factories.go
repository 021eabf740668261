// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"time"

	"kindred/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// City is a seeding centre; profiles are scattered around it.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Cities used when Options.Cities is empty.
var defaultCities = []City{
	{Name: "London", Latitude: 51.5074, Longitude: -0.1278},
	{Name: "Manchester", Latitude: 53.4808, Longitude: -2.2426},
	{Name: "Bristol", Latitude: 51.4545, Longitude: -2.5879},
}

var genders = []string{models.GenderFemale, models.GenderMale, models.GenderNonBinary}

// Factory builds profiles with gofakeit. A fixed seed gives a repeatable data set.
type Factory struct {
	db        *gorm.DB
	faker     *gofakeit.Faker
	cities    []City
	phoneBase int64
	created   int64
}

// NewFactory creates a Factory bound to db. db may be nil when only Build* is used.
func NewFactory(db *gorm.DB, seed int64, cities []City) *Factory {
	if len(cities) == 0 {
		cities = defaultCities
	}
	f := &Factory{db: db, faker: gofakeit.New(seed), cities: cities}
	if db != nil {
		// Continue numbering after existing rows so reruns without --clean don't collide.
		var maxID int64
		_ = db.Model(&models.User{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
		f.phoneBase = maxID
	}
	return f
}

// BuildUser returns an unsaved adult profile near one of the factory's cities.
func (f *Factory) BuildUser() *models.User {
	f.created++
	city := f.cities[f.faker.Number(0, len(f.cities)-1)]
	lat := city.Latitude + f.faker.Float64Range(-0.25, 0.25)
	lon := city.Longitude + f.faker.Float64Range(-0.25, 0.25)

	now := time.Now().UTC()
	birth := f.faker.DateRange(now.AddDate(-55, 0, 0), now.AddDate(-19, 0, 0))

	return &models.User{
		Phone:       fmt.Sprintf("+44770%07d", f.phoneBase+f.created),
		DisplayName: f.faker.FirstName(),
		Gender:      genders[f.faker.Number(0, len(genders)-1)],
		BirthDate:   birth,
		Bio:         f.faker.Sentence(f.faker.Number(6, 14)),
		PhotoURL:    f.faker.ImageURL(640, 800),
		Latitude:    &lat,
		Longitude:   &lon,
		IsVerified:  f.faker.Number(1, 100) <= 60,
	}
}

// CreateUsers builds and inserts n profiles in batches.
func (f *Factory) CreateUsers(n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, *f.BuildUser())
	}
	if n == 0 {
		return users, nil
	}
	if err := f.db.CreateInBatches(&users, 100).Error; err != nil {
		return nil, fmt.Errorf("insert users: %w", err)
	}
	return users, nil
}

// Percent reports true with the given probability.
func (f *Factory) Percent(p int) bool {
	return f.faker.Number(1, 100) <= p
}

// Pick returns n distinct indexes in [0, size) excluding skip.
func (f *Factory) Pick(size, n, skip int) []int {
	idx := make([]int, 0, size)
	for i := 0; i < size; i++ {
		if i != skip {
			idx = append(idx, i)
		}
	}
	f.faker.ShuffleAnySlice(idx)
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}
