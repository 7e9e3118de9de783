package pool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/models"
)

func countries(n int) []models.WorkItem {
	items := make([]models.WorkItem, n)
	for i := range items {
		items[i] = models.NewCountryItem(models.ItemAttributes{
			Label:   fmt.Sprintf("Country %d", i),
			IsoCode: fmt.Sprintf("C%d", i),
		}, false)
	}
	return items
}

func TestPartition_PreservesOrderAndBounds(t *testing.T) {
	for _, size := range []int{1, 2, 5, 7, 10, 23} {
		for _, capacity := range []int{1, 2, 3, 5, 10, 50} {
			t.Run(fmt.Sprintf("len=%d/cap=%d", size, capacity), func(t *testing.T) {
				items := countries(size)

				p, err := Partition(items, capacity)
				require.NoError(t, err)

				groups := p.Groups()
				var flattened []models.WorkItem
				for i, g := range groups {
					assert.LessOrEqual(t, len(g), capacity)
					assert.NotEmpty(t, g)
					if i < len(groups)-1 {
						assert.Len(t, g, capacity, "only the last group may be short")
					}
					flattened = append(flattened, g...)
				}
				assert.Equal(t, items, flattened)
				assert.Equal(t, (size+capacity-1)/capacity, p.Len())
				assert.Equal(t, size, p.Total())
			})
		}
	}
}

func TestPartition_EmptyInput(t *testing.T) {
	p, err := Partition(nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Len())

	_, ok := p.Pop()
	assert.False(t, ok)
}

func TestPartition_InvalidCapacity(t *testing.T) {
	_, err := Partition(countries(3), 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = Partition(countries(3), -2)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestPartition_DoesNotAliasInput(t *testing.T) {
	items := countries(4)
	p, err := Partition(items, 2)
	require.NoError(t, err)

	items[0].Label = "mutated"
	group, ok := p.Pop()
	require.True(t, ok)
	assert.Equal(t, "Country 0", group[0].Label)
}

func TestPool_PopIsFIFO(t *testing.T) {
	p, err := Partition(countries(5), 2)
	require.NoError(t, err)

	var sizes []int
	var labels []string
	for {
		g, ok := p.Pop()
		if !ok {
			break
		}
		sizes = append(sizes, len(g))
		labels = append(labels, models.Labels(g)...)
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, models.Labels(countries(5)), labels)
	assert.Equal(t, 0, p.Len())
}

func TestPool_Clear(t *testing.T) {
	p := New(Group(countries(2)), nil, Group(countries(1)))
	assert.Equal(t, 2, p.Len(), "empty groups are skipped")
	assert.Len(t, p.Items(), 3)

	assert.Equal(t, 2, p.Clear())
	_, ok := p.Pop()
	assert.False(t, ok)
}
