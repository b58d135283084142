package marketplace

// Kind identifies the class of a marketplace event.
type Kind string

const (
	KindSale     Kind = "sale"
	KindStock    Kind = "stock"
	KindReview   Kind = "review"
	KindQuestion Kind = "question"
)

// IDBearing reports whether events of this kind carry a stable remote id.
// Aggregate sales are only distinguishable by their query time window.
func (k Kind) IDBearing() bool {
	return k == KindReview || k == KindQuestion
}

// Sale is one record from the statistics sales endpoint.
type Sale struct {
	SaleID          string  `json:"saleID"`
	Date            string  `json:"date"`
	SupplierArticle string  `json:"supplierArticle"`
	ForPay          float64 `json:"forPay"`
}

// Stock is one warehouse line from the statistics stocks endpoint.
type Stock struct {
	NmID            int64  `json:"nmId"`
	SupplierArticle string `json:"supplierArticle"`
	Quantity        int    `json:"quantity"`
}

type ProductDetails struct {
	SupplierArticle string `json:"supplierArticle"`
}

// Review is one unanswered customer review.
type Review struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	ProductDetails ProductDetails `json:"productDetails"`
}

// Question is one unanswered customer question.
type Question struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	ProductDetails ProductDetails `json:"productDetails"`
}
