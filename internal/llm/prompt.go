package llm

import "strings"

const singleSystemPrompt = `You extract structured data from commercial real-estate documents (leases, offering memoranda, rent rolls).
Return ONLY one JSON object. Use snake_case keys for every field you can find in the text, for example:
property_name, property_address, city, state, zip_code, landlord, tenant, lease_start_date, lease_end_date,
lease_term_months, base_rent, rent_frequency, security_deposit, square_feet, number_of_units, year_built,
asking_price, cap_rate, noi, occupancy_rate.
Dates are ISO-8601 (YYYY-MM-DD). Money and percentages are plain numbers without symbols.
If a field is not present in the text, set it to an empty string. Do not invent values.`

const portfolioSystemPrompt = `You extract structured data from commercial real-estate portfolio documents that describe several properties.
Return ONLY a JSON object of the form {"properties": [ ... ]} with one object per property, in the order the properties appear.
Every property object uses the same snake_case keys, for example:
property_name, property_address, city, state, zip_code, property_type, square_feet, number_of_units, year_built,
occupancy_rate, asking_price, cap_rate, noi.
Dates are ISO-8601 (YYYY-MM-DD). Money and percentages are plain numbers without symbols.
If a field is not present for a property, set it to an empty string. Do not invent values.`

// SystemPrompt returns the instruction block for the given document kind.
func SystemPrompt(kind DocKind) string {
	if kind == Portfolio {
		return portfolioSystemPrompt
	}
	return singleSystemPrompt
}

// UserPrompt frames the extracted text with its document type.
func UserPrompt(docType, text string) string {
	var b strings.Builder
	b.WriteString("This lease is of type ")
	b.WriteString(docType)
	b.WriteString(" and the following is the text that I need you to extract from. ")
	b.WriteString(text)
	return b.String()
}
