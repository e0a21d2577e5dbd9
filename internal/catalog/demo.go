package catalog

import "github.com/shopspring/decimal"

const dunkRetro = "Created for the hardwood but taken to the streets, the Nike Dunk Low Retro returns."

// DemoProducts returns the sneakers offered by the demo storefront.
func DemoProducts() []Product {
	return []Product{
		NewProduct("Nike Dunk Olive", decimal.RequireFromString("110.00"),
			"Iconic color blocking with premium materials and plush padding for game-changing comfort that lasts.",
			"sneakers_green"),
		NewProduct("Nike Dunk Mocha", decimal.RequireFromString("110.00"),
			"You can always count on a classic. The Dunk Low pairs its iconic color blocking with premium materials",
			"sneakers_red"),
		NewProduct("Nike Air Jordan", decimal.RequireFromString("178.00"),
			"Originally released to play ball on the court, these iconic kicks level up your street style.",
			"sneakers_grey"),
		NewProduct("Nike Dunk Black", decimal.RequireFromString("94.00"), dunkRetro, "sneakers_black"),
		NewProduct("Nike Dunk Blue", decimal.RequireFromString("84.00"), dunkRetro, "sneakers_blue"),
		NewProduct("Nike Dunk Off White", decimal.RequireFromString("94.00"), dunkRetro, "sneakers_white"),
	}
}

// Demo returns a catalog of DemoProducts.
func Demo() *Catalog {
	c, err := New(DemoProducts()...)
	if err != nil {
		panic(err)
	}
	return c
}
